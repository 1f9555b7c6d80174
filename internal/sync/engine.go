package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/internal/remote"
	"github.com/physiocore/clinicsync/internal/store"
	"github.com/physiocore/clinicsync/pkg/metrics"
)

// Engine synchronizes a tenant's collections between the local record store
// and the remote document store. The local store is the system of record for
// the current session; the remote copy is replication. Documents merge by
// record id with last-writer-wins granularity; no field-level merge exists.
type Engine struct {
	logger    *zap.Logger
	local     store.Store
	remote    *remote.Client
	metrics   *metrics.Metrics
	batchSize int
}

// NewEngine creates a sync engine bounded by batchSize documents per commit.
func NewEngine(logger *zap.Logger, local store.Store, rc *remote.Client, m *metrics.Metrics, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 450
	}
	return &Engine{
		logger:    logger.Named("sync"),
		local:     local,
		remote:    rc,
		metrics:   m,
		batchSize: batchSize,
	}
}

// PushCollection uploads every local record of one collection as remote
// documents keyed by record id. A record without an id gets a positional
// fallback key. Pushing an empty collection is a no-op: push is additive and
// never clears remote data.
func (e *Engine) PushCollection(ctx context.Context, tenant, collection string) error {
	if !cnst.IsCollection(collection) {
		return cnst.ErrUnknownCollection
	}
	start := time.Now()
	err := e.pushCollection(ctx, tenant, collection)
	e.metrics.SyncOp("push", collection, time.Since(start), err == nil)
	return err
}

func (e *Engine) pushCollection(ctx context.Context, tenant, collection string) error {
	records, err := e.local.ReadCollection(ctx, tenant, collection)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		e.logger.Debug("nothing to push",
			zap.String("tenant", tenant),
			zap.String("collection", collection))
		return nil
	}

	docs := make([]remote.Doc, 0, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("pos-%d", i)
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("record %s in %s is not serializable: %w", id, collection, err)
		}
		docs = append(docs, remote.Doc{ID: id, Data: data})
	}

	if err := e.remote.WriteBatches(ctx, tenant, collection, docs, e.batchSize); err != nil {
		return err
	}
	e.logger.Info("pushed collection",
		zap.String("tenant", tenant),
		zap.String("collection", collection),
		zap.Int("records", len(docs)))
	return nil
}

// PullCollection downloads every remote document of one collection and
// replaces the local collection with the result. An empty remote result
// leaves local data untouched, so a misconfigured or blank remote can never
// wipe local state.
func (e *Engine) PullCollection(ctx context.Context, tenant, collection string) error {
	if !cnst.IsCollection(collection) {
		return cnst.ErrUnknownCollection
	}
	start := time.Now()
	err := e.pullCollection(ctx, tenant, collection)
	e.metrics.SyncOp("pull", collection, time.Since(start), err == nil)
	return err
}

func (e *Engine) pullCollection(ctx context.Context, tenant, collection string) error {
	docs, err := e.remote.FetchCollection(ctx, tenant, collection)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		e.logger.Debug("remote collection empty, keeping local data",
			zap.String("tenant", tenant),
			zap.String("collection", collection))
		return nil
	}

	records := e.decodeDocs(tenant, collection, docs)
	if len(records) == 0 {
		// Every remote document was corrupt. Replacing local data with
		// nothing would turn a bad remote into local data loss, so this is
		// treated like an empty remote.
		e.logger.Warn("no remote document decoded, keeping local data",
			zap.String("tenant", tenant),
			zap.String("collection", collection),
			zap.Int("documents", len(docs)))
		return nil
	}
	if err := e.local.WriteCollection(ctx, tenant, collection, records); err != nil {
		return err
	}
	e.logger.Info("pulled collection",
		zap.String("tenant", tenant),
		zap.String("collection", collection),
		zap.Int("records", len(records)))
	return nil
}

// decodeDocs turns raw remote documents into records, dropping corrupt ones
// with a warning.
func (e *Engine) decodeDocs(tenant, collection string, docs map[string]string) []record.Record {
	records := make([]record.Record, 0, len(docs))
	for id, data := range docs {
		var r record.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			e.logger.Warn("skipping corrupt remote document",
				zap.String("tenant", tenant),
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		if r.ID == "" {
			r.ID = id
		}
		records = append(records, r)
	}
	return records
}

// FetchRemote reads a remote collection without touching local state. It also
// serves collections outside the synchronized set, such as broadcast messages
// that exist only remotely.
func (e *Engine) FetchRemote(ctx context.Context, tenant, collection string) ([]record.Record, error) {
	docs, err := e.remote.FetchCollection(ctx, tenant, collection)
	if err != nil {
		return nil, err
	}
	return e.decodeDocs(tenant, collection, docs), nil
}

// PushAll pushes every collection concurrently. The aggregate fails when any
// collection fails; progress already committed elsewhere stands.
func (e *Engine) PushAll(ctx context.Context, tenant string) error {
	return e.fanOut(ctx, tenant, e.PushCollection)
}

// PullAll pulls every collection concurrently, with the same partial-success
// semantics as PushAll.
func (e *Engine) PullAll(ctx context.Context, tenant string) error {
	return e.fanOut(ctx, tenant, e.PullCollection)
}

func (e *Engine) fanOut(ctx context.Context, tenant string, op func(context.Context, string, string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range cnst.Collections {
		collection := collection
		g.Go(func() error {
			return op(gctx, tenant, collection)
		})
	}
	return g.Wait()
}

// HasData is the cheap existence probe used to decide pull-vs-push direction
// on first login for a device: a tenant with remote users has remote data.
func (e *Engine) HasData(ctx context.Context, tenant string) (bool, error) {
	n, err := e.remote.CollectionLen(ctx, tenant, cnst.CollectionUsers)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveDoc mirrors a single record to the remote collection.
func (e *Engine) SaveDoc(ctx context.Context, tenant, collection string, r record.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return e.remote.PutDoc(ctx, tenant, collection, r.ID, data)
}

// DeleteDoc removes a single record's remote document.
func (e *Engine) DeleteDoc(ctx context.Context, tenant, collection, id string) error {
	return e.remote.DeleteDoc(ctx, tenant, collection, id)
}

// SaveTenant mirrors the tenant settings document and keeps the booking slug
// mapping in step with it.
func (e *Engine) SaveTenant(ctx context.Context, t *record.Tenant) error {
	if err := e.remote.PutTenant(ctx, t); err != nil {
		return err
	}
	if t.BookingSlug == "" {
		return nil
	}
	return e.remote.PutSlug(ctx, &record.SlugMapping{
		Slug:      t.BookingSlug,
		TenantID:  t.ID,
		UpdatedAt: time.Now().UTC(),
	})
}
