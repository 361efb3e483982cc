// Package sqlite implements store.Store on SQLite via database/sql and
// the mattn/go-sqlite3 driver. Suited to single-machine deployments where
// durability matters more than claim throughput.
//
// SQLite has no FOR UPDATE SKIP LOCKED and no notification primitive:
// claims use an UPDATE-with-subquery in a single statement, and AwaitJob
// polls on a short interval instead of subscribing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/job"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store   = (*Store)(nil)
	_ fleet.Store = (*Store)(nil)
)

// Store implements the composite store.Store interface backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store over an existing database handle. The Store closes
// the handle on Close.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (or creates) a SQLite database at the given path and returns
// a Store over it. Busy timeout and WAL are set for concurrent claimants.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("quarry/sqlite: open %s: %w", path, err)
	}
	// A single writer at a time avoids SQLITE_BUSY under claim contention.
	db.SetMaxOpenConns(1)
	return New(db, opts...), nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// isDuplicateKey checks if a SQLite error is a unique constraint
// violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
