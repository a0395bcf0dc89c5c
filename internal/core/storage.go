package core

import (
	"context"
	"fmt"
	"strings"

	"pokeindex/internal/infra/persistence/postgres"
	"pokeindex/internal/infra/persistence/sqlite"
	"pokeindex/internal/infra/persistence/sqlstore"
	"pokeindex/internal/platform/envutil"
	"pokeindex/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // sqlite :memory: (tests / dry runs)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and addresses the backend.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// DefaultStorageConfig is a sqlite file in the working directory.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{Driver: StorageSQLite, SQLitePath: sqlite.DefaultPath}
}

// ApplyEnv overlays environment variables on cfg:
//
//	POKEINDEX_STORAGE_DRIVER: memory|sqlite|postgres
//	POKEINDEX_SQLITE_PATH (alias POKE_DB_PATH): sqlite file
//	POKEINDEX_POSTGRES_DSN: DSN when driver=postgres
func (cfg StorageConfig) ApplyEnv() StorageConfig {
	cfg.Driver = StorageDriver(strings.ToLower(envutil.String(string(cfg.Driver), "POKEINDEX_STORAGE_DRIVER")))
	cfg.SQLitePath = envutil.String(cfg.SQLitePath, "POKEINDEX_SQLITE_PATH", "POKE_DB_PATH")
	cfg.PostgresDSN = envutil.String(cfg.PostgresDSN, "POKEINDEX_POSTGRES_DSN")
	return cfg
}

// Validate rejects unknown drivers.
func (cfg StorageConfig) Validate() error {
	switch cfg.Driver {
	case "", StorageMemory, StorageSQLite, StoragePostgres:
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenPersistentStore opens the configured backend and applies the schema.
// Connection failures are reported as *domain.StoreConnectionError.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, opts ...sqlstore.Option) (domain.PersistentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case StorageMemory:
		return sqlite.NewStore(ctx, ":memory:", opts...)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
	default:
		return sqlite.NewStore(ctx, cfg.SQLitePath, opts...)
	}
}
