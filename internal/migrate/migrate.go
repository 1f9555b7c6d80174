package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/internal/remote"
	"github.com/physiocore/clinicsync/internal/store"
	"github.com/physiocore/clinicsync/pkg/metrics"
)

// Engine upgrades legacy single-tenant layouts into the multi-tenant layout.
// Every step is gated by its own one-shot flag and is idempotent, so Run is
// safe on every boot. No step may fail the boot: detection read errors are
// treated as "nothing to migrate", which trades migration completeness for
// availability and is logged as such.
type Engine struct {
	logger        *zap.Logger
	local         store.Store
	remote        *remote.Client // nil when running local-only
	metrics       *metrics.Metrics
	defaultTenant string
	schemaVersion int
}

func NewEngine(logger *zap.Logger, local store.Store, rc *remote.Client, m *metrics.Metrics, defaultTenant string, schemaVersion int) *Engine {
	if defaultTenant == "" {
		defaultTenant = cnst.DefaultTenant
	}
	return &Engine{
		logger:        logger.Named("migrate"),
		local:         local,
		remote:        rc,
		metrics:       m,
		defaultTenant: defaultTenant,
		schemaVersion: schemaVersion,
	}
}

// Run executes every pending migration step. It never fails the boot. The
// version reset runs after the legacy copy so migrated data trips the
// has-data guard, and before anything repopulates seed collections.
func (e *Engine) Run(ctx context.Context) {
	if err := e.MigrateLegacyLocal(ctx); err != nil {
		e.logger.Error("local legacy migration failed, continuing boot", zap.Error(err))
		e.metrics.MigrationStep("legacy_local", false)
	}
	if e.schemaVersion > 0 {
		if err := e.ApplyVersionReset(ctx, e.defaultTenant, e.schemaVersion, e.resetSeedData); err != nil {
			e.logger.Warn("version reset failed, will retry next boot", zap.Error(err))
			e.metrics.MigrationStep("version_reset", false)
		}
	}
	if err := e.MigrateLegacyRemote(ctx); err != nil {
		e.logger.Warn("remote legacy migration failed, will retry next boot", zap.Error(err))
		e.metrics.MigrationStep("legacy_remote", false)
	}
}

// resetSeedData clears the default tenant's seedable collections and
// refreshes its settings record, so the next seed pass starts from current
// defaults instead of stale ones.
func (e *Engine) resetSeedData(ctx context.Context) error {
	for _, collection := range []string{cnst.CollectionExercises, cnst.CollectionMessageTemplates} {
		if err := e.local.WriteCollection(ctx, e.defaultTenant, collection, nil); err != nil {
			return err
		}
	}
	return e.ensureDefaultTenantLocal(ctx)
}

func (e *Engine) flagSet(ctx context.Context, name string) bool {
	_, ok, err := e.local.GetRaw(ctx, cnst.FlagKey(name))
	if err != nil {
		e.logger.Warn("flag read failed, treating as unset", zap.String("flag", name), zap.Error(err))
		return false
	}
	return ok
}

func (e *Engine) setFlag(ctx context.Context, name string) error {
	return e.local.SetRaw(ctx, cnst.FlagKey(name), []byte("true"))
}

// MigrateLegacyLocal copies pre-multi-tenant flat collection keys into the
// default tenant's namespace and synthesizes the default tenant's settings
// and slug cache. With no legacy keys present it only sets the flag.
func (e *Engine) MigrateLegacyLocal(ctx context.Context) error {
	if e.flagSet(ctx, cnst.FlagLegacyMigrated) {
		return nil
	}

	keys, err := e.local.Keys(ctx)
	if err != nil {
		// Treated as "no legacy data" so a transiently unreadable store
		// cannot block boot. This can mask real data loss; see the warn.
		e.logger.Warn("cannot enumerate local keys, assuming no legacy data", zap.Error(err))
		keys = nil
	}
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	migrated := 0
	for _, collection := range cnst.Collections {
		legacyKey := cnst.LegacyCollectionKey(collection)
		if _, ok := keySet[legacyKey]; !ok {
			continue
		}
		data, ok, gerr := e.local.GetRaw(ctx, legacyKey)
		if gerr != nil || !ok {
			e.logger.Warn("legacy key unreadable, skipping",
				zap.String("key", legacyKey),
				zap.Error(gerr))
			continue
		}
		if err := e.local.SetRaw(ctx, cnst.CollectionKey(e.defaultTenant, collection), data); err != nil {
			return fmt.Errorf("copying legacy collection %s: %w", collection, err)
		}
		migrated++
	}

	if migrated > 0 {
		if err := e.ensureDefaultTenantLocal(ctx); err != nil {
			return err
		}
		e.logger.Info("migrated legacy collections into default tenant",
			zap.Int("collections", migrated),
			zap.String("tenant", e.defaultTenant))
	}

	e.metrics.MigrationStep("legacy_local", true)
	return e.setFlag(ctx, cnst.FlagLegacyMigrated)
}

func (e *Engine) defaultTenantRecord() *record.Tenant {
	return &record.Tenant{
		ID:          e.defaultTenant,
		Name:        "Default Clinic",
		BookingSlug: e.defaultTenant,
		Status:      record.TenantStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func (e *Engine) ensureDefaultTenantLocal(ctx context.Context) error {
	clinicKey := cnst.ClinicKey(e.defaultTenant)
	if _, ok, _ := e.local.GetRaw(ctx, clinicKey); !ok {
		data, err := json.Marshal(e.defaultTenantRecord())
		if err != nil {
			return err
		}
		if err := e.local.SetRaw(ctx, clinicKey, data); err != nil {
			return err
		}
	}
	return e.local.SetRaw(ctx, cnst.SlugKey(e.defaultTenant), []byte(e.defaultTenant))
}

// MigrateLegacyRemote copies flat (un-scoped) remote collections into the
// default tenant's scope and ensures the tenant and slug documents exist
// remotely. Unlike the local step, a remote failure leaves the flag unset so
// the step retries on the next boot.
func (e *Engine) MigrateLegacyRemote(ctx context.Context) error {
	if e.remote == nil || e.flagSet(ctx, cnst.FlagRemoteMigrated) {
		return nil
	}

	migrated := 0
	for _, collection := range cnst.Collections {
		flat, err := e.remote.FetchFlatCollection(ctx, collection)
		if err != nil {
			return fmt.Errorf("detecting flat remote collection %s: %w", collection, err)
		}
		if len(flat) == 0 {
			continue
		}
		docs := make([]remote.Doc, 0, len(flat))
		for id, data := range flat {
			docs = append(docs, remote.Doc{ID: id, Data: []byte(data)})
		}
		if err := e.remote.WriteBatches(ctx, e.defaultTenant, collection, docs, 450); err != nil {
			return fmt.Errorf("copying flat remote collection %s: %w", collection, err)
		}
		migrated++
	}

	if _, ok, err := e.remote.GetTenant(ctx, e.defaultTenant); err != nil {
		return err
	} else if !ok {
		if err := e.remote.PutTenant(ctx, e.defaultTenantRecord()); err != nil {
			return err
		}
	}
	if _, ok, err := e.remote.GetSlug(ctx, e.defaultTenant); err != nil {
		return err
	} else if !ok {
		err := e.remote.PutSlug(ctx, &record.SlugMapping{
			Slug:      e.defaultTenant,
			TenantID:  e.defaultTenant,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}

	if migrated > 0 {
		e.logger.Info("migrated flat remote collections into tenant scope",
			zap.Int("collections", migrated),
			zap.String("tenant", e.defaultTenant))
	}

	e.metrics.MigrationStep("legacy_remote", true)
	return e.setFlag(ctx, cnst.FlagRemoteMigrated)
}

// ApplyVersionReset runs a destructive reset (wiping stale seed data) exactly
// once per schema version, and never when tenant-scoped data already exists:
// a version bump must not destroy real user data. The reset runs before any
// seed or default-data population.
func (e *Engine) ApplyVersionReset(ctx context.Context, tenant string, version int, reset func(ctx context.Context) error) error {
	flag := fmt.Sprintf("schema_v%d", version)
	if e.flagSet(ctx, flag) {
		return nil
	}

	if e.tenantHasData(ctx, tenant) {
		e.logger.Info("tenant has data, skipping version reset",
			zap.String("tenant", tenant),
			zap.Int("version", version))
		return e.setFlag(ctx, flag)
	}

	if err := reset(ctx); err != nil {
		return fmt.Errorf("schema v%d reset: %w", version, err)
	}
	e.logger.Info("applied version reset",
		zap.String("tenant", tenant),
		zap.Int("version", version))
	e.metrics.MigrationStep("version_reset", true)
	return e.setFlag(ctx, flag)
}

func (e *Engine) tenantHasData(ctx context.Context, tenant string) bool {
	for _, collection := range cnst.Collections {
		records, err := e.local.ReadCollection(ctx, tenant, collection)
		if err == nil && len(records) > 0 {
			return true
		}
	}
	return false
}
