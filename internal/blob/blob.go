// Package blob re-exports the blob store contract and selects a backend.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"pokeindex/internal/blob/core"
	"pokeindex/internal/infra/blob/fs"
	memorystore "pokeindex/internal/infra/blob/memory"
	infraS3 "pokeindex/internal/infra/blob/s3"
	"pokeindex/internal/platform/envutil"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
	S3Config         = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Config selects and parameterizes a backend.
type Config struct {
	Driver Driver
	Root   string // fs only
	S3     S3Config
}

// ConfigFromEnv reads POKEINDEX_BLOB_DRIVER (fs|s3|memory, default fs),
// POKEINDEX_BLOB_FS_ROOT and the S3 variables documented on
// s3.ConfigFromEnv.
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(strings.ToLower(envutil.String(string(DriverFilesystem), "POKEINDEX_BLOB_DRIVER"))),
		Root:   envutil.String(fs.DefaultRoot, "POKEINDEX_BLOB_FS_ROOT"),
		S3:     infraS3.ConfigFromEnv(),
	}
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.Root)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests exposes the fake-transport S3 store for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

// Replace writes data at key, deleting any previous object first.
func Replace(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	if _, err := s.Delete(ctx, key); err != nil {
		return Info{}, fmt.Errorf("replace blob %s: %w", key, err)
	}
	info, err := s.Put(ctx, key, bytes.NewReader(data), opts)
	if err != nil {
		return Info{}, fmt.Errorf("replace blob %s: %w", key, err)
	}
	return info, nil
}
