package middleware

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/job"
)

// Deadline returns middleware that enforces an execution time limit on the
// handler via context cancellation. The pool passes its active deadline
// here so a hung handler is cancelled around the same time the expiry
// sweep would reclaim its job. A non-positive limit disables the check.
func Deadline(limit time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) ([]byte, error) {
		if limit > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		return next(ctx)
	}
}
