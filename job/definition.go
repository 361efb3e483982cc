package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type, R the result type; both must be serializable by
// the registry's codec.
type Definition[T, R any] struct {
	// Name is the job type this definition handles.
	Name string

	// Handler is the pure function that turns a payload into a result or
	// an error. A returned error marks the job failed; it is never retried
	// by the engine.
	Handler func(ctx context.Context, payload T) (R, error)

	// Opts holds submission defaults for jobs of this type. The engine's
	// Submit applies them before any per-call options.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T, R any](name string, handler func(ctx context.Context, payload T) (R, error), opts ...Option) *Definition[T, R] {
	def := &Definition[T, R]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
