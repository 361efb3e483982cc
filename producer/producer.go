// Package producer implements the submission side of the queue: create a
// job, persist it, and await its outcome with a bounded wait.
//
// Await suspends only the calling goroutine: each producer's wait is an
// independent suspension, never a process-wide stall. A producer whose
// wait expires learns nothing about the job: the outcome is unknown, the
// job is untouched, and it may still complete later. Fire-and-forget
// submission is simply submitting without ever calling Await.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/codec"
	"github.com/quarrylabs/quarry/hook"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
)

// Producer creates jobs and lets callers await their outcome without
// polling the store directly.
type Producer struct {
	store  job.Store
	hooks  *hook.Registry
	codec  codec.Codec
	logger *slog.Logger
}

// Option configures a Producer.
type Option func(*Producer)

// WithHooks sets the hook registry notified on enqueue.
func WithHooks(r *hook.Registry) Option {
	return func(p *Producer) { p.hooks = r }
}

// WithCodec sets the codec used to encode payloads and decode results.
func WithCodec(c codec.Codec) Option {
	return func(p *Producer) { p.codec = c }
}

// WithLogger sets the producer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// New creates a Producer over the given store.
func New(store job.Store, opts ...Option) *Producer {
	p := &Producer{
		store:  store,
		codec:  codec.JSON{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle identifies a submitted job and can be awaited.
type Handle struct {
	// JobID is the identifier assigned at submission.
	JobID id.JobID

	autoCleanup bool
}

// Submit encodes the payload, creates a job of the given type, and
// enqueues it. The returned handle can be awaited or discarded
// (fire-and-forget).
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Submit[T any](ctx context.Context, p *Producer, jobType string, payload T, opts ...job.Option) (*Handle, error) {
	data, err := p.codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("quarry/producer: encode payload for type %q: %w", jobType, err)
	}
	return p.SubmitRaw(ctx, jobType, data, opts...)
}

// SubmitRaw enqueues a job with a pre-encoded payload.
func (p *Producer) SubmitRaw(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (*Handle, error) {
	j := job.New(jobType, payload, opts...)

	if err := p.store.EnqueueJob(ctx, j); err != nil {
		// Surface enqueue failures synchronously; the job never exists.
		return nil, fmt.Errorf("quarry/producer: enqueue type %q: %w", jobType, err)
	}

	if p.hooks != nil {
		p.hooks.EmitJobEnqueued(ctx, j)
	}

	p.logger.Debug("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", jobType),
		slog.Int("priority", j.Priority),
	)

	return &Handle{JobID: j.ID, autoCleanup: j.AutoCleanup}, nil
}

// Lookup builds a handle for a previously submitted job ID, for awaiting
// from a different process than the submitter.
func (p *Producer) Lookup(ctx context.Context, jobID id.JobID) (*Handle, error) {
	j, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Handle{JobID: j.ID, autoCleanup: j.AutoCleanup}, nil
}

// Resubmit creates a fresh job from a terminal one, reusing its type,
// payload, priority, and auto-cleanup flag. The queue never retries on
// its own; a retry is a new submission, and this is how operators make
// one. Returns ErrInvalidTransition if the source job is not terminal.
func (p *Producer) Resubmit(ctx context.Context, jobID id.JobID) (*Handle, error) {
	src, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !src.State.Terminal() {
		return nil, fmt.Errorf("quarry/producer: resubmit %s in state %q: %w",
			jobID, src.State, quarry.ErrInvalidTransition)
	}

	opts := []job.Option{job.WithPriority(src.Priority)}
	if src.AutoCleanup {
		opts = append(opts, job.WithAutoCleanup())
	}
	return p.SubmitRaw(ctx, src.Type, src.Payload, opts...)
}

// DecodeResult decodes a completed outcome's result into v using the
// producer's codec.
func (p *Producer) DecodeResult(o *Outcome, v any) error {
	if o.Status != StatusCompleted {
		return fmt.Errorf("quarry/producer: no result to decode (status %q)", o.Status)
	}
	return p.codec.Unmarshal(o.Result, v)
}

// deleteObserved removes an auto-cleanup job after its terminal state was
// observed. Best-effort: a miss means the purge got there first.
func (p *Producer) deleteObserved(ctx context.Context, jobID id.JobID) {
	if err := p.store.DeleteJob(ctx, jobID); err != nil && !errors.Is(err, quarry.ErrJobNotFound) {
		p.logger.Warn("auto-cleanup delete failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}
