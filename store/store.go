// Package store defines the aggregate persistence interface. Each
// subsystem (job, fleet) defines its own store interface; the composite
// Store composes them all. Backends: Redis, SQLite, and Memory.
package store

import (
	"context"

	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/job"
)

// Store is the aggregate persistence interface. A single backend
// implements all subsystem contracts; the store is the only channel of
// coordination between producers and workers.
type Store interface {
	job.Store
	fleet.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
