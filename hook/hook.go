// Package hook defines the lifecycle hook system for quarry.
// Hooks are notified of lifecycle events (job enqueued, claimed, completed,
// failed, timed out) and can react to them: audit trails, metrics, cache
// invalidation, etc.
//
// Each lifecycle event is a separate interface so a hook opts in only to
// the events it cares about.
package hook

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when a worker claims a job for execution.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job's handler fails.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobTimedOut is called when the expiry sweep reclaims an abandoned job.
type JobTimedOut interface {
	OnJobTimedOut(ctx context.Context, j *job.Job) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
