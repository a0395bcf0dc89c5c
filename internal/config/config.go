// Package config loads pokeindex settings. Precedence, lowest first:
// defaults, YAML file, POKEINDEX_* environment, command-line flags (applied by
// the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pokeindex/internal/blob"
	"pokeindex/internal/catalog"
	"pokeindex/internal/chaincache"
	"pokeindex/internal/core"
	"pokeindex/internal/export"
	"pokeindex/internal/infra/blob/fs"
	"pokeindex/internal/platform/envutil"
	"pokeindex/internal/platform/logger"
	"pokeindex/internal/syncer"
)

// Config holds every pokeindex setting.
type Config struct {
	Log     LogConfig          `yaml:"log"`
	Storage core.StorageConfig `yaml:"storage"`
	Catalog CatalogConfig      `yaml:"catalog"`
	Sync    SyncConfig         `yaml:"sync"`
	Export  ExportConfig       `yaml:"export"`
	Cache   CacheConfig        `yaml:"cache"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"` // development | production
}

// CatalogConfig addresses the remote catalog and selects targets.
type CatalogConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Delay         time.Duration `yaml:"delay"`
	MaxRetries    int           `yaml:"max_retries"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Timeout       time.Duration `yaml:"timeout"`
	Names         []string      `yaml:"names"`
	Offset        int           `yaml:"offset"`
	PageSize      int           `yaml:"page_size"`
	Limit         int           `yaml:"limit"`
}

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	Workers     int    `yaml:"workers"`
	MetricsFile string `yaml:"metrics_file"`
}

// ExportConfig places the static payload.
type ExportConfig struct {
	Key        string      `yaml:"key"`
	BlobDriver blob.Driver `yaml:"blob_driver"`
	BlobRoot   string      `yaml:"blob_root"`
}

// CacheConfig enables the shared genealogy snapshot tier when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// Default returns the built-in settings.
func Default() Config {
	cc := catalog.DefaultConfig()
	return Config{
		Log:     LogConfig{Level: "info", Mode: "development"},
		Storage: core.DefaultStorageConfig(),
		Catalog: CatalogConfig{
			BaseURL:       cc.BaseURL,
			Delay:         cc.Delay,
			MaxRetries:    cc.MaxRetries,
			BackoffFactor: cc.BackoffFactor,
			Timeout:       cc.Timeout,
			PageSize:      catalog.DefaultPageSize,
		},
		Sync:   SyncConfig{BatchSize: syncer.DefaultBatchSize, Workers: 1},
		Export: ExportConfig{Key: export.DefaultKey, BlobDriver: blob.DriverFilesystem, BlobRoot: fs.DefaultRoot},
		Cache:  CacheConfig{TTL: chaincache.DefaultTTL},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays POKEINDEX_* variables (plus the POKE_DB_PATH and
// POKE_LOG_LEVEL aliases) on c.
func (c Config) ApplyEnv() Config {
	c.Log.Level = envutil.String(c.Log.Level, "POKEINDEX_LOG_LEVEL", "POKE_LOG_LEVEL")
	c.Log.Mode = envutil.String(c.Log.Mode, "POKEINDEX_LOG_MODE")
	c.Storage = c.Storage.ApplyEnv()

	c.Catalog.BaseURL = envutil.String(c.Catalog.BaseURL, "POKEINDEX_BASE_URL")
	c.Catalog.Delay = envutil.Duration("POKEINDEX_SLEEP", c.Catalog.Delay)
	c.Catalog.MaxRetries = envutil.Int("POKEINDEX_MAX_RETRIES", c.Catalog.MaxRetries)
	c.Catalog.BackoffFactor = envutil.Float("POKEINDEX_BACKOFF", c.Catalog.BackoffFactor)
	c.Catalog.Timeout = envutil.Duration("POKEINDEX_TIMEOUT", c.Catalog.Timeout)
	if names := envutil.List("POKEINDEX_NAMES"); len(names) > 0 {
		c.Catalog.Names = names
	}
	c.Catalog.Offset = envutil.Int("POKEINDEX_OFFSET", c.Catalog.Offset)
	c.Catalog.PageSize = envutil.Int("POKEINDEX_PAGE_SIZE", c.Catalog.PageSize)
	c.Catalog.Limit = envutil.Int("POKEINDEX_LIMIT", c.Catalog.Limit)

	c.Sync.BatchSize = envutil.Int("POKEINDEX_BATCH_SIZE", c.Sync.BatchSize)
	c.Sync.Workers = envutil.Int("POKEINDEX_WORKERS", c.Sync.Workers)
	c.Sync.MetricsFile = envutil.String(c.Sync.MetricsFile, "POKEINDEX_METRICS_FILE")

	c.Export.Key = envutil.String(c.Export.Key, "POKEINDEX_EXPORT_KEY")
	c.Export.BlobDriver = blob.Driver(strings.ToLower(envutil.String(string(c.Export.BlobDriver), "POKEINDEX_BLOB_DRIVER")))
	c.Export.BlobRoot = envutil.String(c.Export.BlobRoot, "POKEINDEX_BLOB_FS_ROOT")

	c.Cache.RedisAddr = envutil.String(c.Cache.RedisAddr, "POKEINDEX_REDIS_ADDR")
	c.Cache.RedisPassword = envutil.String(c.Cache.RedisPassword, "POKEINDEX_REDIS_PASSWORD")
	c.Cache.RedisDB = envutil.Int("POKEINDEX_REDIS_DB", c.Cache.RedisDB)
	c.Cache.TTL = envutil.Duration("POKEINDEX_REDIS_TTL", c.Cache.TTL)
	return c
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "development", "prod", "production":
	default:
		errs = append(errs, fmt.Errorf("log.mode: unknown mode %q", c.Log.Mode))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if c.Storage.Driver == core.StoragePostgres && strings.TrimSpace(c.Storage.PostgresDSN) == "" {
		errs = append(errs, errors.New("storage.postgres_dsn: required for the postgres driver"))
	}
	if c.Catalog.Delay < 0 {
		errs = append(errs, errors.New("catalog.delay: must not be negative"))
	}
	if c.Catalog.MaxRetries < 1 {
		errs = append(errs, errors.New("catalog.max_retries: must be at least 1"))
	}
	if c.Catalog.BackoffFactor < 0 {
		errs = append(errs, errors.New("catalog.backoff_factor: must not be negative"))
	}
	if c.Catalog.Offset < 0 {
		errs = append(errs, errors.New("catalog.offset: must not be negative"))
	}
	if c.Sync.BatchSize < 1 {
		errs = append(errs, errors.New("sync.batch_size: must be at least 1"))
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, errors.New("sync.workers: must be at least 1"))
	}
	switch c.Export.BlobDriver {
	case "", blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		errs = append(errs, fmt.Errorf("export.blob_driver: unknown driver %q", c.Export.BlobDriver))
	}
	return errors.Join(errs...)
}

// ClientConfig maps the catalog section onto the HTTP client settings.
func (c Config) ClientConfig() catalog.Config {
	cc := catalog.DefaultConfig()
	cc.BaseURL = c.Catalog.BaseURL
	cc.Delay = c.Catalog.Delay
	cc.MaxRetries = c.Catalog.MaxRetries
	cc.BackoffFactor = c.Catalog.BackoffFactor
	if c.Catalog.Timeout > 0 {
		cc.Timeout = c.Catalog.Timeout
	}
	return cc
}

// Selection maps the catalog section onto a target selection.
func (c Config) Selection() catalog.Selection {
	return catalog.Selection{
		Names:    c.Catalog.Names,
		Offset:   c.Catalog.Offset,
		PageSize: c.Catalog.PageSize,
		Limit:    c.Catalog.Limit,
	}
}

// SyncerConfig maps the sync section onto the orchestrator settings.
func (c Config) SyncerConfig() syncer.Config {
	return syncer.Config{BatchSize: c.Sync.BatchSize, Workers: c.Sync.Workers}
}

// BlobConfig maps the export section onto a blob backend. S3 settings always
// come from the POKEINDEX_BLOB_S3_* environment.
func (c Config) BlobConfig() blob.Config {
	bc := blob.ConfigFromEnv()
	bc.Driver = c.Export.BlobDriver
	bc.Root = c.Export.BlobRoot
	return bc
}

// RedisConfig returns the snapshot tier settings and whether it is enabled.
func (c Config) RedisConfig() (chaincache.RedisConfig, bool) {
	if strings.TrimSpace(c.Cache.RedisAddr) == "" {
		return chaincache.RedisConfig{}, false
	}
	return chaincache.RedisConfig{
		Addr:     c.Cache.RedisAddr,
		Password: c.Cache.RedisPassword,
		DB:       c.Cache.RedisDB,
		TTL:      c.Cache.TTL,
	}, true
}
