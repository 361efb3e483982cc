package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/audit"
	"github.com/quarrylabs/quarry/job"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
	err    error
}

func (c *captureRecorder) Record(_ context.Context, evt *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return c.err
}

func (c *captureRecorder) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func TestHook_EmitsLifecycleEvents(t *testing.T) {
	rec := &captureRecorder{}
	h := audit.New(rec)

	ctx := context.Background()
	j := job.New("resize", nil, job.WithPriority(2))

	if err := h.OnJobEnqueued(ctx, j); err != nil {
		t.Fatalf("enqueued: %v", err)
	}
	if err := h.OnJobClaimed(ctx, j); err != nil {
		t.Fatalf("claimed: %v", err)
	}
	if err := h.OnJobCompleted(ctx, j, 5*time.Millisecond); err != nil {
		t.Fatalf("completed: %v", err)
	}

	want := []string{audit.ActionJobEnqueued, audit.ActionJobClaimed, audit.ActionJobCompleted}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}

	first := rec.events[0]
	if first.JobID != j.ID.String() {
		t.Errorf("job_id = %q, want %q", first.JobID, j.ID)
	}
	if first.Outcome != audit.OutcomeSuccess {
		t.Errorf("outcome = %q, want %q", first.Outcome, audit.OutcomeSuccess)
	}
	if first.Metadata["job_type"] != "resize" {
		t.Errorf("job_type = %v, want resize", first.Metadata["job_type"])
	}
}

func TestHook_FailureCarriesReason(t *testing.T) {
	rec := &captureRecorder{}
	h := audit.New(rec)

	j := job.New("resize", nil)
	if err := h.OnJobFailed(context.Background(), j, errors.New("handler broke")); err != nil {
		t.Fatalf("failed: %v", err)
	}

	evt := rec.events[0]
	if evt.Severity != audit.SeverityCritical {
		t.Errorf("severity = %q, want critical", evt.Severity)
	}
	if evt.Outcome != audit.OutcomeFailure {
		t.Errorf("outcome = %q, want failure", evt.Outcome)
	}
	if evt.Reason != "handler broke" {
		t.Errorf("reason = %q, want handler error", evt.Reason)
	}
}

func TestHook_WithActionsFilters(t *testing.T) {
	rec := &captureRecorder{}
	h := audit.New(rec, audit.WithActions(audit.ActionJobFailed, audit.ActionJobTimedOut))

	ctx := context.Background()
	j := job.New("resize", nil)

	_ = h.OnJobEnqueued(ctx, j)
	_ = h.OnJobClaimed(ctx, j)
	_ = h.OnJobTimedOut(ctx, j)

	got := rec.actions()
	if len(got) != 1 || got[0] != audit.ActionJobTimedOut {
		t.Errorf("events = %v, want only timed_out", got)
	}
}

func TestHook_RecorderErrorDoesNotPropagate(t *testing.T) {
	rec := &captureRecorder{err: errors.New("sink down")}
	h := audit.New(rec)

	if err := h.OnJobEnqueued(context.Background(), job.New("resize", nil)); err != nil {
		t.Errorf("recorder error propagated: %v", err)
	}
}
