// Package sqlite opens the persisted mirror on an embedded SQLite file using
// the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"pokeindex/internal/infra/persistence/sqlstore"
	"pokeindex/pkg/domain"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "pokeindex.db"

// Store is the SQLite-backed persistent store.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the database at path and applies the
// schema. Foreign keys are enforced so child rows cascade with their parent.
func NewStore(ctx context.Context, path string, opts ...sqlstore.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, &domain.StoreConnectionError{Driver: "sqlite", Err: fmt.Errorf("create dirs: %w", err)}
		}
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, &domain.StoreConnectionError{Driver: "sqlite", Err: fmt.Errorf("open sqlite: %w", err)}
	}
	// one writer; savepoints and :memory: both need a single connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StoreConnectionError{Driver: "sqlite", Err: fmt.Errorf("ping sqlite: %w", err)}
	}
	inner := sqlstore.New(db, sqlstore.SQLite, opts...)
	if err := inner.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StoreConnectionError{Driver: "sqlite", Err: err}
	}
	return &Store{Store: inner, path: path}, nil
}

// DSN builds the modernc connection string with the pragmas the store relies on.
func DSN(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	if strings.Contains(path, "?") {
		return "file:" + path + "&" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
