// Package worker provides the job execution runtime: an Executor that
// invokes registered handlers through middleware and finalizes jobs with
// ownership-checked writes, and a Pool that manages claim slots, the
// expiry sweep, and fleet membership.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/hook"
	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/middleware"
)

// Executor runs a single claimed job through middleware and the registered
// handler, then finalizes it. A finalize is only accepted by the store if
// this worker still owns the job; a stale result is discarded and logged,
// never retried.
type Executor struct {
	registry *job.Registry
	hooks    *hook.Registry
	store    job.Store
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	hooks *hook.Registry,
	store job.Store,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		hooks:    hooks,
		store:    store,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a claimed job through the middleware chain and handler.
// On success it records the result via CompleteJob; on handler error it
// records a structured failure via FailJob. Either write is rejected with
// quarry.ErrOwnershipMismatch if the expiry sweep reclaimed the job while
// it ran, in which case the outcome is discarded.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		// The pool only claims registered types, so this indicates a
		// registry mutated after start. Fail the job so it does not sit
		// active until the sweep.
		failure := &job.Failure{Kind: "runtime", Message: quarry.ErrNoHandler.Error() + ": " + j.Type}
		return e.finalizeFailed(ctx, j, failure)
	}

	start := time.Now()

	// The terminal handler that calls the registered job handler.
	terminal := func(ctx context.Context) ([]byte, error) {
		return handler(ctx, j.Payload)
	}

	result, err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.finalizeFailed(ctx, j, &job.Failure{Kind: "handler", Message: err.Error()})
	}

	return e.finalizeCompleted(ctx, j, result, elapsed)
}

// finalizeCompleted records the result with an ownership-checked write.
func (e *Executor) finalizeCompleted(ctx context.Context, j *job.Job, result []byte, elapsed time.Duration) error {
	if err := e.store.CompleteJob(ctx, j.ID, j.Owner, result); err != nil {
		if errors.Is(err, quarry.ErrOwnershipMismatch) {
			e.logger.Warn("result discarded: job no longer owned by this worker",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
			)
			return err
		}
		e.logger.Error("failed to record job result",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.State = job.StateCompleted
	j.Result = result
	e.hooks.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// finalizeFailed records the failure with an ownership-checked write.
func (e *Executor) finalizeFailed(ctx context.Context, j *job.Job, failure *job.Failure) error {
	if err := e.store.FailJob(ctx, j.ID, j.Owner, failure); err != nil {
		if errors.Is(err, quarry.ErrOwnershipMismatch) {
			e.logger.Warn("failure discarded: job no longer owned by this worker",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
			)
			return err
		}
		e.logger.Error("failed to record job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.State = job.StateFailed
	j.Failure = failure
	e.hooks.EmitJobFailed(ctx, j, failure)

	e.logger.Info("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("failure", failure.Message),
	)

	// The handler error stays on the job; the worker loop continues.
	return nil
}
