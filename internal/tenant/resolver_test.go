package tenant

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/common/config"
	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/internal/remote"
	"github.com/physiocore/clinicsync/internal/store"
	syncpkg "github.com/physiocore/clinicsync/internal/sync"
)

type resolverFixture struct {
	resolver *Resolver
	local    store.Store
	remote   *remote.Client
	mirror   *syncpkg.Mirror
	mr       *miniredis.Miniredis
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := remote.NewClient(zap.NewNop(), config.RemoteConfig{
		ClusterType: cnst.RedisClusterTypeSingle,
		Addr:        mr.Addr(),
	})
	if err != nil {
		t.Fatalf("failed to create remote client: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	local, err := store.NewDiskStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}

	mirror := syncpkg.NewMirror(zap.NewNop(), nil, 16)

	return &resolverFixture{
		resolver: NewResolver(zap.NewNop(), local, rc, mirror),
		local:    local,
		remote:   rc,
		mirror:   mirror,
		mr:       mr,
	}
}

func seedTenant(t *testing.T, f *resolverFixture, id, slug string, deleted bool) {
	t.Helper()
	err := f.remote.PutTenant(context.Background(), &record.Tenant{
		ID:          id,
		Name:        "Clinic " + id,
		BookingSlug: slug,
		Status:      record.TenantStatusActive,
		Deleted:     deleted,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}
}

func TestResolveViaSlugDoc(t *testing.T) {
	f := newResolverFixture(t)
	defer f.mirror.Close()
	ctx := context.Background()

	seedTenant(t, f, "clinic-a", "river", false)
	assert.NoError(t, f.remote.PutSlug(ctx, &record.SlugMapping{Slug: "river", TenantID: "clinic-a"}))

	id, err := f.resolver.Resolve(ctx, "  RIVER ")
	assert.NoError(t, err)
	assert.Equal(t, "clinic-a", id)

	// Successful resolution is cached for offline fallback.
	data, ok, _ := f.local.GetRaw(ctx, cnst.SlugKey("river"))
	assert.True(t, ok)
	assert.Equal(t, "clinic-a", string(data))
}

func TestResolveSelfHealsMissingSlugDoc(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// Tenant exists with a slug field but no booking_slugs document.
	seedTenant(t, f, "clinic-a", "abc", false)
	_, found, _ := f.remote.GetSlug(ctx, "abc")
	assert.False(t, found)

	id, err := f.resolver.Resolve(ctx, "abc")
	assert.NoError(t, err)
	assert.Equal(t, "clinic-a", id)

	// Draining the mirror guarantees the queued self-heal write ran.
	f.mirror.Close()
	m, found, err := f.remote.GetSlug(ctx, "abc")
	assert.NoError(t, err)
	assert.True(t, found, "self-heal must recreate the slug document")
	assert.Equal(t, "clinic-a", m.TenantID)
}

func TestResolveSkipsDeletedTenant(t *testing.T) {
	f := newResolverFixture(t)
	defer f.mirror.Close()
	ctx := context.Background()

	seedTenant(t, f, "clinic-dead", "ghost", true)
	assert.NoError(t, f.remote.PutSlug(ctx, &record.SlugMapping{Slug: "ghost", TenantID: "clinic-dead"}))

	id, err := f.resolver.Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, cnst.ErrTenantNotFound)
	assert.Equal(t, "ghost", id, "deleted tenant falls through to code-as-id")
}

func TestResolveUnknownCodeFallsBackToCode(t *testing.T) {
	f := newResolverFixture(t)
	defer f.mirror.Close()

	id, err := f.resolver.Resolve(context.Background(), "default")
	assert.ErrorIs(t, err, cnst.ErrTenantNotFound)
	assert.Equal(t, "default", id)
}

func TestResolveRemoteDownUsesLocalCache(t *testing.T) {
	f := newResolverFixture(t)
	defer f.mirror.Close()
	ctx := context.Background()

	assert.NoError(t, f.local.SetRaw(ctx, cnst.SlugKey("river"), []byte("clinic-a")))
	f.mr.Close()

	id, err := f.resolver.Resolve(ctx, "river")
	assert.NoError(t, err)
	assert.Equal(t, "clinic-a", id)
}

func TestResolveRemoteDownCacheMissUsesCodeVerbatim(t *testing.T) {
	f := newResolverFixture(t)
	defer f.mirror.Close()

	f.mr.Close()
	id, err := f.resolver.Resolve(context.Background(), "river")
	assert.ErrorIs(t, err, cnst.ErrTenantNotFound)
	assert.Equal(t, "river", id)
}

func TestResolveEmptyCode(t *testing.T) {
	f := newResolverFixture(t)
	defer f.mirror.Close()

	_, err := f.resolver.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, cnst.ErrTenantNotFound)
}

func TestSessionPinsTenant(t *testing.T) {
	s := NewSession("clinic-a", "u-1")
	assert.Equal(t, "clinic-a", s.Tenant())
	assert.Equal(t, "u-1", s.User())
	assert.WithinDuration(t, time.Now(), s.StartedAt(), time.Second)
}
