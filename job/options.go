package job

// Options configures per-job behavior at submission time.
type Options struct {
	// Priority determines claim ordering within a type. Higher values are
	// claimed first; equal priorities are claimed FIFO by creation time.
	Priority int

	// AutoCleanup deletes the job record once a producer observes its
	// terminal state, or after the cleanup grace period if nobody does.
	AutoCleanup bool
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Priority:    0,
		AutoCleanup: false,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithAutoCleanup marks the job for deletion after its terminal state is
// observed (or after the grace period).
func WithAutoCleanup() Option {
	return func(o *Options) {
		o.AutoCleanup = true
	}
}
