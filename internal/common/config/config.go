package config

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/physiocore/clinicsync/pkg/helper"
)

type (
	// Config is the root configuration for clinicsync.
	Config struct {
		Logger  LoggerConfig  `yaml:"logger"`
		Storage StorageConfig `yaml:"storage"`
		Remote  RemoteConfig  `yaml:"remote"`
		Sync    SyncConfig    `yaml:"sync"`
		Tenant  TenantConfig  `yaml:"tenant"`
		Metrics MetricsConfig `yaml:"metrics"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// TenantConfig carries tenant-resolution and seeding settings.
	TenantConfig struct {
		DefaultTenant string `yaml:"default_tenant"` // tenant id for migrated legacy data
		CountryCode   string `yaml:"country_code"`   // calling code prefixed to 10-digit phones, e.g. "+91"
		SchemaVersion int    `yaml:"schema_version"` // current local schema version
	}

	// MetricsConfig configures the prometheus registry.
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// LoadConfig loads configuration from a YAML file with environment variable
// support. Placeholders of the form ${VAR} or ${VAR:default} are resolved
// before unmarshalling.
func LoadConfig(filename string) (*Config, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}
	cfg.setDefaults()

	return &cfg, cfgPath, nil
}

func (c *Config) setDefaults() {
	if c.Tenant.DefaultTenant == "" {
		c.Tenant.DefaultTenant = "default"
	}
	if c.Tenant.CountryCode == "" {
		c.Tenant.CountryCode = "+91"
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 450
	}
	if c.Sync.MirrorQueueSize <= 0 {
		c.Sync.MirrorQueueSize = 256
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "disk"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "clinicsync"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
