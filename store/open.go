// Package store is the indexed local destination for canonical case records:
// a single SQLite file in WAL mode, written by one Loader and readable
// concurrently by offline query tools.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

type openConfig struct {
	busyTimeout int
	synchronous string
	cacheSize   int
	mkdirAll    bool
}

func openDefaults() openConfig {
	return openConfig{
		busyTimeout: 10_000,
		synchronous: "NORMAL",
	}
}

// Option customises Open behaviour.
type Option func(*openConfig)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *openConfig) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *openConfig) { c.synchronous = mode } }

// WithCacheSize sets PRAGMA cache_size. 0 (default) keeps the SQLite
// default. Negative values are KiB.
func WithCacheSize(pages int) Option { return func(c *openConfig) { c.cacheSize = pages } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *openConfig) { c.mkdirAll = true } }

// Open opens (or creates) the case database at path, applies the WAL
// pragmas, and runs migrations. WAL keeps read queries against committed
// batches unblocked while a batch commit is in progress.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openDefaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	if cfg.cacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", cfg.cacheSize))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns(1) ensures
// every query hits the same in-memory database, and t.Cleanup closes it.
func OpenMemory(t testing.TB, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}
