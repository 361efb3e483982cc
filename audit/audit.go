// Package audit bridges job lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured event through a [Recorder];
// deployments inject their own backend or use [SlogRecorder].
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarrylabs/quarry/hook"
	"github.com/quarrylabs/quarry/job"
)

// Compile-time interface checks.
var (
	_ hook.Hook         = (*Hook)(nil)
	_ hook.JobEnqueued  = (*Hook)(nil)
	_ hook.JobClaimed   = (*Hook)(nil)
	_ hook.JobCompleted = (*Hook)(nil)
	_ hook.JobFailed    = (*Hook)(nil)
	_ hook.JobTimedOut  = (*Hook)(nil)
)

// Actions emitted by this hook, one per lifecycle event.
const (
	ActionJobEnqueued  = "job.enqueued"
	ActionJobClaimed   = "job.claimed"
	ActionJobCompleted = "job.completed"
	ActionJobFailed    = "job.failed"
	ActionJobTimedOut  = "job.timed_out"
)

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one audit trail entry.
type Event struct {
	Action   string         `json:"action"`
	JobID    string         `json:"job_id"`
	Outcome  string         `json:"outcome"`
	Severity string         `json:"severity"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Recorder persists audit events. Implementations must be safe for
// concurrent use; Record is called from worker goroutines.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// RecorderFunc adapts a plain function to a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// SlogRecorder writes audit events to a structured logger. It is the
// default backend for deployments without a dedicated audit store.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(_ context.Context, evt *Event) error {
		attrs := []any{
			slog.String("action", evt.Action),
			slog.String("job_id", evt.JobID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.Info("audit", attrs...)
		return nil
	})
}

// Hook emits one audit event per job lifecycle transition.
type Hook struct {
	recorder Recorder
	enabled  map[string]bool // nil = all actions enabled
	logger   *slog.Logger
}

// Option configures a Hook.
type Option func(*Hook)

// WithActions restricts the hook to the listed actions. Unlisted actions
// are dropped without calling the recorder.
func WithActions(actions ...string) Option {
	return func(h *Hook) {
		h.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			h.enabled[a] = true
		}
	}
}

// WithLogger sets the logger used for recorder failures.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hook) {
		h.logger = l
	}
}

// New creates a Hook that emits events through the given recorder.
func New(r Recorder, opts ...Option) *Hook {
	h := &Hook{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements hook.Hook.
func (h *Hook) Name() string { return "audit" }

// OnJobEnqueued implements hook.JobEnqueued.
func (h *Hook) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return h.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess, j.ID.String(), nil,
		"job_type", j.Type,
		"priority", j.Priority,
	)
}

// OnJobClaimed implements hook.JobClaimed.
func (h *Hook) OnJobClaimed(ctx context.Context, j *job.Job) error {
	return h.record(ctx, ActionJobClaimed, SeverityInfo, OutcomeSuccess, j.ID.String(), nil,
		"job_type", j.Type,
		"worker_id", j.Owner.String(),
	)
}

// OnJobCompleted implements hook.JobCompleted.
func (h *Hook) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j.ID.String(), nil,
		"job_type", j.Type,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements hook.JobFailed.
func (h *Hook) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return h.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure, j.ID.String(), jobErr,
		"job_type", j.Type,
	)
}

// OnJobTimedOut implements hook.JobTimedOut.
func (h *Hook) OnJobTimedOut(ctx context.Context, j *job.Job) error {
	return h.record(ctx, ActionJobTimedOut, SeverityWarning, OutcomeFailure, j.ID.String(), nil,
		"job_type", j.Type,
		"worker_id", j.Owner.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
// kvPairs is a list of key-value pairs added to Metadata.
func (h *Hook) record(
	ctx context.Context,
	action, severity, outcome, jobID string,
	err error,
	kvPairs ...any,
) error {
	if h.enabled != nil && !h.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:   action,
		JobID:    jobID,
		Outcome:  outcome,
		Severity: severity,
		Reason:   reason,
		Metadata: meta,
	}

	// Recorder failures are logged, never propagated: the audit trail
	// must not affect job processing.
	if recErr := h.recorder.Record(ctx, evt); recErr != nil {
		h.logger.Warn("audit: failed to record event",
			"action", action,
			"job_id", jobID,
			"error", recErr,
		)
	}
	return nil
}
