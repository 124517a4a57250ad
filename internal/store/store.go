// Package store is the persistence layer shared by settings, history, and
// media blobs. It exposes a small key-value / hash / append-log surface so
// the rest of the code never sees SQL, with sqlite as the default driver,
// postgres for shared deployments, and an in-memory driver for tests.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by point lookups when the key does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence surface.
//
// Hashes are flat string field/value maps under one key. Logs are ordered
// byte records under one key, appended at the tail and trimmed from the
// head. Blobs hold opaque payloads under generated keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HSetAll(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// LogAppend pushes value onto the tail of the log, then trims the
	// head so at most max records remain. max <= 0 means unbounded.
	LogAppend(ctx context.Context, key string, value []byte, max int) error
	// LogRange returns the most recent limit records, oldest first.
	// limit <= 0 returns the whole log.
	LogRange(ctx context.Context, key string, limit int) ([][]byte, error)
	LogDelete(ctx context.Context, key string) error

	// PutBlob stores data under a fresh key and returns the key.
	PutBlob(ctx context.Context, data []byte) (string, error)
	GetBlob(ctx context.Context, key string) ([]byte, error)
	DeleteBlob(ctx context.Context, key string) error

	Close() error
}

// Config selects and parameterizes a driver.
type Config struct {
	// Driver is "sqlite", "postgres", or "memory".
	Driver string `json:"driver"`
	// Path is the sqlite database file.
	Path string `json:"path"`
	// PostgresURL is the pgx connection string for the postgres driver.
	PostgresURL string `json:"postgres_url"`
}

// Open constructs the configured driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresURL)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
