// Package engine wires all quarry subsystems together: the job registry,
// hook registry, middleware chain, producer, and worker pool.
//
// This package exists to break the import cycle: the root quarry package
// defines errors and the Coordinator (imported by job, worker, and the
// stores) and so cannot import those packages back. The engine package
// sits above all subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/backoff"
	"github.com/quarrylabs/quarry/codec"
	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/hook"
	"github.com/quarrylabs/quarry/job"
	mw "github.com/quarrylabs/quarry/middleware"
	"github.com/quarrylabs/quarry/producer"
	"github.com/quarrylabs/quarry/throttle"
	"github.com/quarrylabs/quarry/worker"
)

// Engine wraps a Coordinator with typed subsystem access.
// Use Build() to create one from a Coordinator.
type Engine struct {
	c        *quarry.Coordinator
	hooks    *hook.Registry
	registry *job.Registry
	jobStore job.Store
	pool     *worker.Pool
	prod     *producer.Producer

	cdc  codec.Codec
	mws  []mw.Middleware
	idle backoff.Strategy

	throttleConfigs []throttle.Config
	throttleManager *throttle.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(eng *Engine) {
		eng.hooks.Register(h)
	}
}

// WithMiddleware appends middleware to the engine's chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithCodec sets the codec used for payloads and results. Defaults to
// JSON.
func WithCodec(c codec.Codec) Option {
	return func(eng *Engine) {
		eng.cdc = c
	}
}

// WithIdleBackoff sets the backoff applied between claim attempts when
// the queues are empty. Defaults to backoff.DefaultIdle().
func WithIdleBackoff(s backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.idle = s
	}
}

// WithThrottleConfig registers per-type rate limiting and concurrency
// configurations. Types not listed have no limits.
func WithThrottleConfig(configs ...throttle.Config) Option {
	return func(eng *Engine) {
		eng.throttleConfigs = append(eng.throttleConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, the metrics middleware uses this provider instead of the
// global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Coordinator.
// The Coordinator's store must implement job.Store; fleet.Store is
// optional and enables worker registration and sweep leadership.
func Build(c *quarry.Coordinator, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	store := c.Store()

	if store == nil {
		return nil, quarry.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("quarry: store does not implement job.Store")
	}

	// Fleet support is optional; without it workers run unregistered and
	// every worker sweeps.
	fs, _ := store.(fleet.Store)

	eng := &Engine{
		c:        c,
		hooks:    hook.NewRegistry(logger),
		jobStore: js,
		cdc:      codec.JSON{},
	}

	for _, opt := range opts {
		opt(eng)
	}

	eng.registry = job.NewRegistryWithCodec(eng.cdc)

	if eng.idle == nil {
		eng.idle = backoff.DefaultIdle()
	}

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/quarrylabs/quarry")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/quarrylabs/quarry")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	config := c.Config()

	// Default middleware stack: recover, tracing, metrics, logging,
	// deadline. User middleware runs innermost.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Deadline(config.ActiveDeadline),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.hooks, eng.jobStore, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithTypes(config.Types...),
		worker.WithConcurrency(c.Policy().Concurrency()),
		worker.WithPolicyName(c.Policy().Name()),
		worker.WithIdleBackoff(eng.idle),
		worker.WithSweepInterval(config.SweepInterval),
		worker.WithActiveDeadline(config.ActiveDeadline),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithCleanupGrace(config.CleanupGrace),
		worker.WithLogger(logger),
	}
	if fs != nil {
		poolOpts = append(poolOpts, worker.WithFleet(fs))
	}
	if len(eng.throttleConfigs) > 0 {
		eng.throttleManager = throttle.NewManager(eng.throttleConfigs...)
		poolOpts = append(poolOpts, worker.WithThrottle(eng.throttleManager))
	}

	eng.pool = worker.NewPool(eng.jobStore, executor, eng.hooks, poolOpts...)

	eng.prod = producer.New(eng.jobStore,
		producer.WithHooks(eng.hooks),
		producer.WithCodec(eng.cdc),
		producer.WithLogger(logger),
	)

	// Wire back into the Coordinator.
	c.SetPool(eng.pool)
	c.SetHooks(eng.hooks)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T, R any](eng *Engine, def *job.Definition[T, R]) {
	job.RegisterDefinition(eng.registry, def)
}

// Submit encodes the payload and enqueues a job of the given type,
// returning a handle that can be awaited or discarded. Defaults recorded
// with the type's registered definition apply first; explicit options
// override them.
func Submit[T any](ctx context.Context, eng *Engine, jobType string, payload T, opts ...job.Option) (*producer.Handle, error) {
	if d, ok := eng.registry.Defaults(jobType); ok {
		base := make([]job.Option, 0, len(opts)+2)
		base = append(base, job.WithPriority(d.Priority))
		if d.AutoCleanup {
			base = append(base, job.WithAutoCleanup())
		}
		opts = append(base, opts...)
	}
	return producer.Submit(ctx, eng.prod, jobType, payload, opts...)
}

// Start begins claiming and processing jobs.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.c.Stop(ctx)
}

// Producer returns the engine's producer.
func (eng *Engine) Producer() *producer.Producer { return eng.prod }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Coordinator returns the underlying Coordinator.
func (eng *Engine) Coordinator() *quarry.Coordinator { return eng.c }

// Throttle returns the throttle manager, or nil if no throttle configs
// were provided.
func (eng *Engine) Throttle() *throttle.Manager { return eng.throttleManager }
