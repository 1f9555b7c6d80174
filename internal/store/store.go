package store

import (
	"context"
	"time"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
)

// Store is the local record store. All collection operations are scoped by
// tenant; the raw key-value plane backs migration flags and the slug cache.
//
// ReadCollection returns an empty collection for absent or corrupt data
// instead of an error: the local store favors availability, and a corrupt
// value self-heals on the next successful write.
type Store interface {
	ReadCollection(ctx context.Context, tenant, collection string) ([]record.Record, error)
	WriteCollection(ctx context.Context, tenant, collection string, records []record.Record) error

	SoftDelete(ctx context.Context, tenant, collection, id, deletedBy string) error
	Restore(ctx context.Context, tenant, collection, id string) error
	Purge(ctx context.Context, tenant, collection, id string) error

	GetRaw(ctx context.Context, key string) ([]byte, bool, error)
	SetRaw(ctx context.Context, key string, value []byte) error
	DeleteRaw(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// mutateRecord applies fn to the record with the given id and writes the
// collection back. Both backends share this read-modify-write path.
func mutateRecord(ctx context.Context, s Store, tenant, collection, id string, fn func(*record.Record) error) error {
	records, err := s.ReadCollection(ctx, tenant, collection)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		if err := fn(&records[i]); err != nil {
			return err
		}
		return s.WriteCollection(ctx, tenant, collection, records)
	}
	return cnst.ErrRecordNotFound
}

func softDelete(ctx context.Context, s Store, tenant, collection, id, deletedBy string) error {
	return mutateRecord(ctx, s, tenant, collection, id, func(r *record.Record) error {
		if r.Deleted() {
			// Restamping would let a direct delete overwrite a cascade
			// stamp and make the record restorable again.
			return nil
		}
		now := time.Now().UTC()
		r.DeletedAt = &now
		r.DeletedBy = deletedBy
		return nil
	})
}

func restore(ctx context.Context, s Store, tenant, collection, id string) error {
	return mutateRecord(ctx, s, tenant, collection, id, func(r *record.Record) error {
		if r.CascadeDeleted() {
			return cnst.ErrNotRestorable
		}
		r.DeletedAt = nil
		r.DeletedBy = ""
		return nil
	})
}

func purge(ctx context.Context, s Store, tenant, collection, id string) error {
	records, err := s.ReadCollection(ctx, tenant, collection)
	if err != nil {
		return err
	}
	kept := records[:0]
	found := false
	for _, r := range records {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return cnst.ErrRecordNotFound
	}
	return s.WriteCollection(ctx, tenant, collection, kept)
}
