package producer

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/job"
)

// Status is the producer-visible outcome of an await.
type Status string

const (
	// StatusCompleted means the job finished and carries a result.
	StatusCompleted Status = "completed"
	// StatusFailed means the handler could not complete the computation;
	// the outcome carries a structured failure.
	StatusFailed Status = "failed"
	// StatusTimedOut covers two distinct conditions, told apart by
	// Outcome.Terminal: the local wait expired (outcome unknown, job
	// untouched), or the expiry sweep declared the job abandoned
	// (terminal).
	StatusTimedOut Status = "timed_out"
)

// Outcome is the result of awaiting a job.
type Outcome struct {
	Status  Status
	Result  []byte
	Failure *job.Failure

	// Terminal reports whether the job itself reached a terminal state.
	// When false, only the local wait expired: the job is still in
	// flight and may complete later; treat the outcome as unknown, not
	// as a failure. Retrying a non-terminal timeout is safe only if the
	// handler is idempotent.
	Terminal bool
}

// Await blocks until the job reaches a terminal state or until timeout
// elapses, whichever comes first. The wait suspends only the calling
// goroutine; it subscribes to the store's terminal notification rather
// than polling.
//
// If the handle was submitted with auto-cleanup, observing a terminal
// outcome deletes the job record.
func (p *Producer) Await(ctx context.Context, h *Handle, timeout time.Duration) (*Outcome, error) {
	j, err := p.store.AwaitJob(ctx, h.JobID, timeout)
	if err != nil {
		return nil, err
	}
	if j == nil {
		// Local wait expired. The job is left exactly as it was.
		return &Outcome{Status: StatusTimedOut, Terminal: false}, nil
	}

	out := &Outcome{Terminal: true}
	switch j.State {
	case job.StateCompleted:
		out.Status = StatusCompleted
		out.Result = j.Result
	case job.StateFailed:
		out.Status = StatusFailed
		out.Failure = j.Failure
	case job.StateTimedOut:
		out.Status = StatusTimedOut
	default:
		// AwaitJob only returns terminal jobs; anything else is a store
		// bug. Report it as an unknown outcome.
		out.Status = StatusTimedOut
		out.Terminal = false
		return out, nil
	}

	if h.autoCleanup {
		p.deleteObserved(ctx, h.JobID)
	}

	return out, nil
}
