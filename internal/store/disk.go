package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
)

// DiskStore persists each key as one JSON file under a base directory.
type DiskStore struct {
	logger  *zap.Logger
	baseDir string
	mu      sync.RWMutex
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates a new disk-based store
func NewDiskStore(logger *zap.Logger, baseDir string) (*DiskStore, error) {
	logger = logger.Named("store.disk")

	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Join(home, ".clinicsync", "data")
	}
	logger.Info("Using local data directory", zap.String("path", baseDir))

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &DiskStore{
		logger:  logger,
		baseDir: baseDir,
	}, nil
}

// path returns the backing file for a key. The key text is percent-encoded
// first: tenant ids come from human-entered clinic codes, and an id carrying
// path separators or ".." segments must not name a file outside baseDir.
// Well-formed keys contain only word characters and pass through unchanged.
func (s *DiskStore) path(key string) string {
	return filepath.Join(s.baseDir, encodeKey(key)+".json")
}

func encodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '_', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func decodeKey(name string) string {
	out, err := url.PathUnescape(name)
	if err != nil {
		return name
	}
	return out
}

func (s *DiskStore) ReadCollection(_ context.Context, tenant, collection string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(cnst.CollectionKey(tenant, collection)))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read collection file, treating as empty",
				zap.String("tenant", tenant),
				zap.String("collection", collection),
				zap.Error(err))
		}
		return []record.Record{}, nil
	}

	records, err := record.DecodeCollection(data)
	if err != nil {
		s.logger.Warn("corrupt collection data, treating as empty",
			zap.String("tenant", tenant),
			zap.String("collection", collection),
			zap.Error(err))
		return []record.Record{}, nil
	}
	return records, nil
}

func (s *DiskStore) WriteCollection(_ context.Context, tenant, collection string, records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := record.EncodeCollection(records)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(cnst.CollectionKey(tenant, collection)), data, 0644)
}

func (s *DiskStore) SoftDelete(ctx context.Context, tenant, collection, id, deletedBy string) error {
	return softDelete(ctx, s, tenant, collection, id, deletedBy)
}

func (s *DiskStore) Restore(ctx context.Context, tenant, collection, id string) error {
	return restore(ctx, s, tenant, collection, id)
}

func (s *DiskStore) Purge(ctx context.Context, tenant, collection, id string) error {
	return purge(ctx, s, tenant, collection, id)
}

func (s *DiskStore) GetRaw(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *DiskStore) SetRaw(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return os.WriteFile(s.path(key), value, 0644)
}

func (s *DiskStore) DeleteRaw(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *DiskStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		keys = append(keys, decodeKey(strings.TrimSuffix(entry.Name(), ".json")))
	}
	return keys, nil
}

func (s *DiskStore) Close() error {
	return nil
}
