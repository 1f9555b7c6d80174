package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/config"
)

// NewStore creates a new local store based on configuration
func NewStore(logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("Initializing local storage", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "disk":
		return NewDiskStore(logger, cfg.Disk.Path)
	case "db":
		return NewDBStore(logger, DatabaseType(cfg.Database.Type), cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
