package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
)

func newTestDBStore(t *testing.T) *DBStore {
	t.Helper()
	s, err := NewDBStore(zap.NewNop(), SQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create db store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDBStoreInvalidType(t *testing.T) {
	_, err := NewDBStore(zap.NewNop(), DatabaseType("oracle"), "dsn")
	assert.ErrorIs(t, err, ErrInvalidDatabaseType)
}

func TestDBStoreWriteRead(t *testing.T) {
	s := newTestDBStore(t)
	ctx := context.Background()

	in := []record.Record{
		{ID: "p-1", Fields: map[string]any{"name": "Asha"}},
	}
	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients, in))

	got, err := s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "Asha", got[0].String("name"))

	// Overwrite is a full replace.
	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients, nil))
	got, err = s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestDBStoreCorruptValueTreatedAsEmpty(t *testing.T) {
	s := newTestDBStore(t)
	ctx := context.Background()

	key := cnst.CollectionKey("clinic-a", cnst.CollectionPatients)
	assert.NoError(t, s.SetRaw(ctx, key, []byte("{corrupt")))

	records, err := s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestDBStoreTenantPartitionIsolation(t *testing.T) {
	s := newTestDBStore(t)
	ctx := context.Background()

	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionUsers,
		[]record.Record{{ID: "a-1", Fields: map[string]any{}}}))
	assert.NoError(t, s.WriteCollection(ctx, "clinic-b", cnst.CollectionUsers,
		[]record.Record{{ID: "b-1", Fields: map[string]any{}}}))

	a, _ := s.ReadCollection(ctx, "clinic-a", cnst.CollectionUsers)
	assert.Len(t, a, 1)
	assert.Equal(t, "a-1", a[0].ID)
}

func TestDBStoreTrashLifecycle(t *testing.T) {
	s := newTestDBStore(t)
	ctx := context.Background()

	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients,
		[]record.Record{{ID: "p-1", Fields: map[string]any{"name": "Asha"}}}))

	assert.NoError(t, s.SoftDelete(ctx, "clinic-a", cnst.CollectionPatients, "p-1", ""))
	assert.NoError(t, s.Restore(ctx, "clinic-a", cnst.CollectionPatients, "p-1"))

	assert.NoError(t, s.SoftDelete(ctx, "clinic-a", cnst.CollectionPatients, "p-1", "parent"))
	assert.ErrorIs(t, s.Restore(ctx, "clinic-a", cnst.CollectionPatients, "p-1"), cnst.ErrNotRestorable)
}

func TestDBStoreRawAndKeys(t *testing.T) {
	s := newTestDBStore(t)
	ctx := context.Background()

	assert.NoError(t, s.SetRaw(ctx, "physio_slug_abc", []byte(`"clinic-a"`)))
	data, ok, err := s.GetRaw(ctx, "physio_slug_abc")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"clinic-a"`, string(data))

	keys, err := s.Keys(ctx)
	assert.NoError(t, err)
	assert.Contains(t, keys, "physio_slug_abc")

	assert.NoError(t, s.DeleteRaw(ctx, "physio_slug_abc"))
	_, ok, _ = s.GetRaw(ctx, "physio_slug_abc")
	assert.False(t, ok)
}
