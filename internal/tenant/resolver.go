package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/internal/remote"
	"github.com/physiocore/clinicsync/internal/store"
	syncpkg "github.com/physiocore/clinicsync/internal/sync"
	"github.com/physiocore/clinicsync/pkg/utils"
)

// Resolver maps a human-entered clinic code to a tenant id.
//
// Resolution order: remote slug document, fallback scan of tenant documents
// by their stored slug field (with fire-and-forget self-heal of the missing
// slug document), then the code itself as tenant id. When the remote is
// unreachable the local slug cache answers, and the code itself is the last
// resort. Login never hard-fails purely on slug-lookup absence.
type Resolver struct {
	logger *zap.Logger
	local  store.Store
	remote *remote.Client // nil when running local-only
	mirror *syncpkg.Mirror
}

func NewResolver(logger *zap.Logger, local store.Store, rc *remote.Client, mirror *syncpkg.Mirror) *Resolver {
	return &Resolver{
		logger: logger.Named("tenant.resolver"),
		local:  local,
		remote: rc,
		mirror: mirror,
	}
}

// Resolve returns the tenant id for a clinic code. When nothing matches
// anywhere it returns the normalized code itself together with
// cnst.ErrTenantNotFound, so callers can surface the miss and still proceed.
func (r *Resolver) Resolve(ctx context.Context, code string) (string, error) {
	code = utils.NormalizeSlug(code)
	if code == "" {
		return "", cnst.ErrTenantNotFound
	}

	if r.remote == nil {
		return r.resolveLocal(ctx, code)
	}

	id, err := r.resolveRemote(ctx, code)
	switch {
	case err == nil:
		r.cacheLocally(ctx, code, id)
		return id, nil
	case errors.Is(err, cnst.ErrTenantNotFound):
		// Remote answered definitively: nothing owns this slug. The code
		// itself is the tenant id in the bootstrap/default case.
		return code, cnst.ErrTenantNotFound
	default:
		r.logger.Warn("remote unreachable during tenant resolution, using local fallback",
			zap.String("code", code),
			zap.Error(err))
		return r.resolveLocal(ctx, code)
	}
}

func (r *Resolver) resolveRemote(ctx context.Context, code string) (string, error) {
	mapping, found, err := r.remote.GetSlug(ctx, code)
	if err != nil {
		return "", err
	}
	if found {
		deleted, derr := r.tenantDeleted(ctx, mapping.TenantID)
		if derr != nil {
			return "", derr
		}
		if !deleted {
			return mapping.TenantID, nil
		}
		r.logger.Warn("slug points to deleted tenant, falling back to scan",
			zap.String("code", code),
			zap.String("tenant", mapping.TenantID))
	}

	// The slug document is missing or stale. Scan tenant documents by their
	// own slug field; this handles mappings that were never created.
	ids, err := r.remote.ListTenantIDs(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		raw, ok, gerr := r.remote.GetTenantRaw(ctx, id)
		if gerr != nil {
			return "", gerr
		}
		if !ok {
			continue
		}
		if gjson.GetBytes(raw, "bookingSlug").String() != code {
			continue
		}
		if gjson.GetBytes(raw, "deleted").Bool() {
			continue
		}
		r.selfHeal(code, id)
		return id, nil
	}
	return "", cnst.ErrTenantNotFound
}

func (r *Resolver) tenantDeleted(ctx context.Context, id string) (bool, error) {
	raw, ok, err := r.remote.GetTenantRaw(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		// No settings document yet; the mapping alone is trusted.
		return false, nil
	}
	return gjson.GetBytes(raw, "deleted").Bool(), nil
}

// selfHeal recreates a missing slug document in the background. The write is
// fire-and-forget: its failure must never block login.
func (r *Resolver) selfHeal(code, tenantID string) {
	if r.mirror == nil {
		return
	}
	rc := r.remote
	err := r.mirror.Enqueue("slug_self_heal", func(ctx context.Context) error {
		return rc.PutSlug(ctx, &record.SlugMapping{
			Slug:      code,
			TenantID:  tenantID,
			UpdatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		r.logger.Warn("could not queue slug self-heal",
			zap.String("code", code),
			zap.Error(err))
	}
}

func (r *Resolver) resolveLocal(ctx context.Context, code string) (string, error) {
	data, ok, err := r.local.GetRaw(ctx, cnst.SlugKey(code))
	if err == nil && ok && len(data) > 0 {
		return string(data), nil
	}
	if err != nil {
		r.logger.Warn("local slug cache read failed", zap.String("code", code), zap.Error(err))
	}
	return code, cnst.ErrTenantNotFound
}

func (r *Resolver) cacheLocally(ctx context.Context, code, tenantID string) {
	if err := r.local.SetRaw(ctx, cnst.SlugKey(code), []byte(tenantID)); err != nil {
		r.logger.Warn("failed to cache slug mapping locally",
			zap.String("code", code),
			zap.Error(err))
	}
}
