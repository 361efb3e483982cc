// Package redis implements store.Store using Redis for high-throughput
// workloads. Jobs are stored as Hashes, each type's queue is a Sorted Set
// ordered by priority and enqueue time, and terminal transitions are
// announced over Pub/Sub so awaiting producers never poll.
//
// The claim and the ownership-checked finalize run as Lua scripts, so
// their precondition check and effect are a single atomic step on the
// server.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/job"
)

// Compile-time interface checks.
var (
	_ job.Store   = (*Store)(nil)
	_ fleet.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New creates a new Redis-backed store. The client must support Pub/Sub;
// the store closes it on Close.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
