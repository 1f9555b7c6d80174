package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/record"
)

// DBStore implements Store on a key-value table through GORM.
type DBStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ Store = (*DBStore)(nil)

// DatabaseType represents the supported database types
type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
)

// ErrInvalidDatabaseType is returned for an unsupported database type.
var ErrInvalidDatabaseType = errors.New("invalid database type")

// kvEntry is one local-storage key with its JSON text value.
type kvEntry struct {
	Key       string `gorm:"primaryKey;column:k;size:255"`
	Value     string `gorm:"column:v"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string {
	return "clinic_kv"
}

// NewDBStore creates a new database-backed store
func NewDBStore(logger *zap.Logger, dbType DatabaseType, dsn string) (*DBStore, error) {
	logger = logger.Named("store.db")

	var dialector gorm.Dialector
	switch dbType {
	case PostgreSQL:
		dialector = postgres.Open(dsn)
	case MySQL:
		dialector = mysql.Open(dsn)
	case SQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, ErrInvalidDatabaseType
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, err
	}

	return &DBStore{
		logger: logger,
		db:     db,
	}, nil
}

func (s *DBStore) ReadCollection(ctx context.Context, tenant, collection string) ([]record.Record, error) {
	data, ok, err := s.GetRaw(ctx, cnst.CollectionKey(tenant, collection))
	if err != nil {
		s.logger.Warn("failed to read collection row, treating as empty",
			zap.String("tenant", tenant),
			zap.String("collection", collection),
			zap.Error(err))
		return []record.Record{}, nil
	}
	if !ok {
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

func (s *DBStore) WriteCollection(ctx context.Context, tenant, collection string, records []record.Record) error {
	data, err := record.EncodeCollection(records)
	if err != nil {
		return err
	}
	return s.SetRaw(ctx, cnst.CollectionKey(tenant, collection), data)
}

func (s *DBStore) SoftDelete(ctx context.Context, tenant, collection, id, deletedBy string) error {
	return softDelete(ctx, s, tenant, collection, id, deletedBy)
}

func (s *DBStore) Restore(ctx context.Context, tenant, collection, id string) error {
	return restore(ctx, s, tenant, collection, id)
}

func (s *DBStore) Purge(ctx context.Context, tenant, collection, id string) error {
	return purge(ctx, s, tenant, collection, id)
}

func (s *DBStore) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	var entry kvEntry
	result := s.db.WithContext(ctx).Where("k = ?", key).First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, result.Error
	}
	return []byte(entry.Value), true, nil
}

func (s *DBStore) SetRaw(ctx context.Context, key string, value []byte) error {
	entry := kvEntry{Key: key, Value: string(value), UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&entry).Error
}

func (s *DBStore) DeleteRaw(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&kvEntry{}, "k = ?", key).Error
}

func (s *DBStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).Model(&kvEntry{}).Pluck("k", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
