package config

type (
	// StorageConfig selects and configures the local record store backend.
	StorageConfig struct {
		Type     string            `yaml:"type"`     // disk or db
		Disk     DiskStorageConfig `yaml:"disk"`     // disk configuration for disk type
		Database DatabaseConfig    `yaml:"database"` // database configuration for db type
	}

	// DiskStorageConfig configures the file-per-key disk backend.
	DiskStorageConfig struct {
		Path string `yaml:"path"` // base directory for local data files
	}

	// DatabaseConfig configures the key-value table backend.
	DatabaseConfig struct {
		Type string `yaml:"type"` // sqlite, mysql or postgres
		DSN  string `yaml:"dsn"`
	}
)
