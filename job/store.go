package job

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Type filters by job type. Empty means all types.
	Type string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Type filters by job type. Empty means all types.
	Type string
	// State filters by job state. Empty means all states.
	State State
}

// Store is the queue engine contract. Every method that mutates a job
// encodes its precondition (state, ownership) atomically with its effect;
// the store's atomic primitives are the only place cross-process mutual
// exclusion is enforced.
type Store interface {
	// EnqueueJob atomically persists the job in StateQueued and appends it
	// to the priority index for its type. A job is never visible to
	// claimants in a partially written state. Duplicate IDs return
	// quarry.ErrJobAlreadyExists.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimJob atomically selects the highest-priority, earliest-created
	// queued job of the given type, transitions it to StateActive with
	// Owner set to workerID and StartedAt set, and returns it. Returns
	// (nil, nil) when no job is available; callers back off rather than
	// spin. Equal priorities are claimed FIFO by CreatedAt.
	ClaimJob(ctx context.Context, jobType string, workerID id.WorkerID) (*Job, error)

	// CompleteJob transitions active → completed, but only if the job's
	// current owner is workerID; otherwise quarry.ErrOwnershipMismatch is
	// returned and nothing is written. Sets Result and FinishedAt, clears
	// Owner, and wakes any AwaitJob waiters.
	CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, result []byte) error

	// FailJob is symmetric to CompleteJob and transitions to StateFailed
	// with the given structured failure.
	FailJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, failure *Failure) error

	// SweepExpired transitions active jobs whose StartedAt is older than
	// olderThan to StateTimedOut, releasing ownership and waking waiters.
	// It is idempotent on already-terminal jobs and safe to run
	// concurrently and repeatedly. Returns the jobs it reclaimed; each
	// returned job carries the Owner whose claim was released even though
	// the stored record clears it, so callers can report who abandoned
	// the job.
	SweepExpired(ctx context.Context, olderThan time.Duration) ([]*Job, error)

	// AwaitJob blocks until the job reaches a terminal state or until
	// timeout elapses, whichever comes first. Returns (nil, nil) on
	// timeout; the job is left untouched and may still finalize later.
	// Implementations use a store notification primitive where available;
	// a waiter never polls the store proportionally to outstanding waits.
	AwaitJob(ctx context.Context, jobID id.JobID, timeout time.Duration) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByState returns jobs matching the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeTerminalJobs deletes terminal jobs that were submitted with
	// AutoCleanup and finished more than olderThan ago. This bounds store
	// growth for producers that never observed their outcome.
	PurgeTerminalJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}
