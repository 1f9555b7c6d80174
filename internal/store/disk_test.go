package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
)

func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("failed to create disk store: %v", err)
	}
	return s
}

func TestDiskStoreReadAbsentCollection(t *testing.T) {
	s := newTestDiskStore(t)

	records, err := s.ReadCollection(context.Background(), "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestDiskStoreWriteRead(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	in := []record.Record{
		{ID: "p-1", Fields: map[string]any{"name": "Asha"}},
		{ID: "p-2", Fields: map[string]any{"name": "Ravi"}},
	}
	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients, in))

	got, err := s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "p-1", got[0].ID)
	assert.Equal(t, "Ravi", got[1].String("name"))
}

func TestDiskStoreCorruptDataTreatedAsEmpty(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	path := filepath.Join(s.baseDir, cnst.CollectionKey("clinic-a", cnst.CollectionPatients)+".json")
	assert.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0644))

	records, err := s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Empty(t, records)

	// Self-heals on the next write.
	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients,
		[]record.Record{{ID: "p-1", Fields: map[string]any{}}}))
	records, err = s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDiskStoreTenantPartitionIsolation(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients,
		[]record.Record{{ID: "a-1", Fields: map[string]any{"name": "A"}}}))
	assert.NoError(t, s.WriteCollection(ctx, "clinic-b", cnst.CollectionPatients,
		[]record.Record{{ID: "b-1", Fields: map[string]any{"name": "B"}}}))

	a, err := s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.NoError(t, err)
	b, err := s.ReadCollection(ctx, "clinic-b", cnst.CollectionPatients)
	assert.NoError(t, err)

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.Equal(t, "a-1", a[0].ID)
	assert.Equal(t, "b-1", b[0].ID)
}

func TestDiskStoreHostileTenantIDStaysInsideBaseDir(t *testing.T) {
	root := t.TempDir()
	baseDir := filepath.Join(root, "nested", "data")
	assert.NoError(t, os.MkdirAll(baseDir, 0755))

	s, err := NewDiskStore(zap.NewNop(), baseDir)
	assert.NoError(t, err)
	ctx := context.Background()

	// Tenant ids come from human-entered clinic codes via the code-as-id
	// fallback, so a traversal attempt must not name a file outside baseDir.
	tenant := "x/../../../evil"
	in := []record.Record{{ID: "p-1", Fields: map[string]any{"name": "Asha"}}}
	assert.NoError(t, s.WriteCollection(ctx, tenant, cnst.CollectionPatients, in))

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		assert.True(t, strings.HasPrefix(path, baseDir+string(filepath.Separator)),
			"file %s escaped the data directory", path)
		return nil
	})
	assert.NoError(t, err)

	got, err := s.ReadCollection(ctx, tenant, cnst.CollectionPatients)
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	keys, err := s.Keys(ctx)
	assert.NoError(t, err)
	assert.Contains(t, keys, cnst.CollectionKey(tenant, cnst.CollectionPatients),
		"encoded filenames decode back to the original key")
}

func TestDiskStoreSoftDeleteRestorePurge(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionPatients,
		[]record.Record{{ID: "p-1", Fields: map[string]any{"name": "Asha"}}}))

	assert.NoError(t, s.SoftDelete(ctx, "clinic-a", cnst.CollectionPatients, "p-1", ""))
	records, _ := s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.True(t, records[0].Deleted())
	assert.Equal(t, "Asha", records[0].String("name"), "soft delete keeps fields for restore")

	assert.NoError(t, s.Restore(ctx, "clinic-a", cnst.CollectionPatients, "p-1"))
	records, _ = s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.False(t, records[0].Deleted())

	assert.NoError(t, s.Purge(ctx, "clinic-a", cnst.CollectionPatients, "p-1"))
	records, _ = s.ReadCollection(ctx, "clinic-a", cnst.CollectionPatients)
	assert.Empty(t, records)
}

func TestDiskStoreRestoreCascadeDeletedFails(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	assert.NoError(t, s.WriteCollection(ctx, "clinic-a", cnst.CollectionAppointments,
		[]record.Record{{ID: "a-1", Fields: map[string]any{"patientId": "p-1"}}}))
	assert.NoError(t, s.SoftDelete(ctx, "clinic-a", cnst.CollectionAppointments, "a-1", "p-1"))

	err := s.Restore(ctx, "clinic-a", cnst.CollectionAppointments, "a-1")
	assert.ErrorIs(t, err, cnst.ErrNotRestorable)

	records, _ := s.ReadCollection(ctx, "clinic-a", cnst.CollectionAppointments)
	assert.True(t, records[0].Deleted(), "cascade-deleted record stays in trash")

	// A direct delete of an already cascade-deleted record must not
	// overwrite the stamp and make it restorable.
	assert.NoError(t, s.SoftDelete(ctx, "clinic-a", cnst.CollectionAppointments, "a-1", ""))
	records, _ = s.ReadCollection(ctx, "clinic-a", cnst.CollectionAppointments)
	assert.Equal(t, "p-1", records[0].DeletedBy)
	assert.ErrorIs(t, s.Restore(ctx, "clinic-a", cnst.CollectionAppointments, "a-1"), cnst.ErrNotRestorable)
}

func TestDiskStoreMutateMissingRecord(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SoftDelete(ctx, "clinic-a", cnst.CollectionPatients, "nope", ""), cnst.ErrRecordNotFound)
	assert.ErrorIs(t, s.Purge(ctx, "clinic-a", cnst.CollectionPatients, "nope"), cnst.ErrRecordNotFound)
}

func TestDiskStoreRawKeys(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	_, ok, err := s.GetRaw(ctx, cnst.FlagKey(cnst.FlagLegacyMigrated))
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.SetRaw(ctx, cnst.FlagKey(cnst.FlagLegacyMigrated), []byte("true")))
	data, ok, err := s.GetRaw(ctx, cnst.FlagKey(cnst.FlagLegacyMigrated))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", string(data))

	keys, err := s.Keys(ctx)
	assert.NoError(t, err)
	assert.Contains(t, keys, cnst.FlagKey(cnst.FlagLegacyMigrated))

	assert.NoError(t, s.DeleteRaw(ctx, cnst.FlagKey(cnst.FlagLegacyMigrated)))
	_, ok, _ = s.GetRaw(ctx, cnst.FlagKey(cnst.FlagLegacyMigrated))
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	assert.NoError(t, s.DeleteRaw(ctx, "physio_missing"))
}
