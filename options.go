package quarry

import (
	"context"
	"log/slog"

	"github.com/quarrylabs/quarry/scale"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// Storer is the minimal store interface held by the Coordinator.
// It covers lifecycle operations only. Subsystem contracts (job.Store,
// fleet.Store) are type-asserted in the engine layer, which sits above
// all subsystem packages and so avoids import cycles.
type Storer interface {
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookShutdown is an internal interface for shutdown hook emission.
type hookShutdown interface {
	EmitShutdown(ctx context.Context)
}

// Coordinator is the central handle for a quarry deployment: it carries
// the shared configuration, logger, store, and, once the engine wires
// them, the worker pool and hook registry.
//
// Create one with New() and functional options, then use engine.Build to
// wire subsystems together.
type Coordinator struct {
	config Config
	logger *slog.Logger
	store  Storer
	policy scale.Policy
	hooks  hookShutdown
	pool   poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Coordinator with the given options.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		config: DefaultConfig(),
		logger: slog.Default(),
		policy: scale.Fixed{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the coordinator's logger.
func (c *Coordinator) Logger() *slog.Logger { return c.logger }

// Store returns the coordinator's store.
func (c *Coordinator) Store() Storer { return c.store }

// Config returns a copy of the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.config }

// Policy returns the scaling policy that sizes the worker pool.
func (c *Coordinator) Policy() scale.Policy { return c.policy }

// SetPool sets the worker pool (called by the engine layer).
func (c *Coordinator) SetPool(p poolRunner) { c.pool = p }

// SetHooks sets the hook registry (called by the engine layer).
func (c *Coordinator) SetHooks(h hookShutdown) { c.hooks = h }

// Start begins claiming and processing jobs.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.pool == nil {
		return ErrNoStore
	}
	if err := c.pool.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the coordinator.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.pool != nil && c.started {
		if err := c.pool.Stop(ctx); err != nil {
			c.logger.Error("pool stop error", "error", err)
		}
	}
	if c.hooks != nil {
		c.hooks.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithTypes sets the job types the coordinator's workers will claim.
func WithTypes(types []string) Option {
	return func(c *Coordinator) error {
		c.config.Types = types
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the coordinator.
// The store must implement Storer at minimum; typically it also implements
// job.Store and fleet.Store, which the engine layer asserts.
func WithStore(s Storer) Option {
	return func(c *Coordinator) error {
		c.store = s
		return nil
	}
}

// WithPolicy sets the scaling policy that decides worker pool size.
func WithPolicy(p scale.Policy) Option {
	return func(c *Coordinator) error {
		c.policy = p
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) error {
		c.config = cfg
		return nil
	}
}
