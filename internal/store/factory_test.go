package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/config"
)

func TestNewStoreDisk(t *testing.T) {
	s, err := NewStore(zap.NewNop(), &config.StorageConfig{
		Type: "disk",
		Disk: config.DiskStorageConfig{Path: t.TempDir()},
	})
	assert.NoError(t, err)
	assert.IsType(t, &DiskStore{}, s)
}

func TestNewStoreDB(t *testing.T) {
	s, err := NewStore(zap.NewNop(), &config.StorageConfig{
		Type:     "db",
		Database: config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"},
	})
	assert.NoError(t, err)
	assert.IsType(t, &DBStore{}, s)
	_ = s.Close()
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore(zap.NewNop(), &config.StorageConfig{Type: "s3"})
	assert.Error(t, err)
}
