package fleet

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/id"
)

// Store defines the persistence contract for fleet membership.
type Store interface {
	// RegisterWorker adds a worker process to the fleet registry.
	RegisterWorker(ctx context.Context, w *Worker) error

	// DeregisterWorker removes a worker from the fleet registry.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// HeartbeatWorker updates the last-seen timestamp for a worker,
	// indicating the process is still alive.
	HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error

	// ListWorkers returns all registered workers.
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// AcquireLeadership attempts to become the sweep leader. Returns true
	// if this worker is now leader. The leadership expires after ttl if
	// not renewed.
	AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// RenewLeadership extends the leader's hold. Must be called before the
	// TTL expires.
	RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// GetLeader returns the current sweep leader, or nil if there is none.
	GetLeader(ctx context.Context) (*Worker, error)
}
