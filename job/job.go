package job

import (
	"time"

	"github.com/quarrylabs/quarry/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateCreated means the job has been constructed but not yet persisted.
	StateCreated State = "created"
	// StateQueued means the job is persisted and waiting to be claimed.
	StateQueued State = "queued"
	// StateActive means exactly one worker currently holds the job.
	StateActive State = "active"
	// StateCompleted means the handler finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the handler returned an error.
	StateFailed State = "failed"
	// StateTimedOut means the expiry sweep reclaimed the job from a worker
	// that never finalized it.
	StateTimedOut State = "timed_out"
)

// Terminal reports whether the state is one of the three terminal states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Failure is the structured reason a job failed. It is set only on jobs in
// StateFailed and is mutually exclusive with Result.
type Failure struct {
	// Kind classifies the failure ("handler", "panic", ...).
	Kind string `json:"kind,omitempty"`
	// Message is the human-readable failure description.
	Message string `json:"message"`
}

// Error implements the error interface so a Failure can flow through
// error-shaped call sites.
func (f *Failure) Error() string { return f.Message }

// Job represents a unit of work to be processed by a worker.
type Job struct {
	ID          id.JobID    `json:"id"`
	Type        string      `json:"type"`
	Payload     []byte      `json:"payload"`
	Priority    int         `json:"priority"`
	State       State       `json:"state"`
	Result      []byte      `json:"result,omitempty"`
	Failure     *Failure    `json:"failure,omitempty"`
	Owner       id.WorkerID `json:"owner,omitempty"`
	AutoCleanup bool        `json:"auto_cleanup"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// New constructs a Job in StateCreated with a fresh ID and the given
// options applied. The store transitions it to StateQueued atomically on
// enqueue; the job is never visible to claimants in any earlier state.
func New(jobType string, payload []byte, opts ...Option) *Job {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Job{
		ID:          id.NewJobID(),
		Type:        jobType,
		Payload:     payload,
		Priority:    o.Priority,
		State:       StateCreated,
		AutoCleanup: o.AutoCleanup,
		CreatedAt:   time.Now().UTC(),
	}
}
