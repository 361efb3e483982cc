package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/backoff"
	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/hook"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/throttle"
)

// Pool runs a set of claim slots against the store. Each slot claims one
// job at a time, executes it, and finalizes it before claiming the next.
// The pool also runs the expiry sweep and, when a fleet store is
// configured, registers itself and heartbeats.
type Pool struct {
	store    job.Store
	executor *Executor
	hooks    *hook.Registry
	logger   *slog.Logger

	workerID    id.WorkerID
	types       []string
	concurrency int
	policyName  string

	idle              backoff.Strategy
	sweepInterval     time.Duration
	activeDeadline    time.Duration
	heartbeatInterval time.Duration
	cleanupGrace      time.Duration

	fleetStore fleet.Store
	throttle   *throttle.Manager

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	activeMu   sync.Mutex
	activeJobs map[string]context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of claim slots.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithTypes sets the job types this pool claims.
func WithTypes(types ...string) PoolOption {
	return func(p *Pool) { p.types = types }
}

// WithIdleBackoff sets the backoff applied between claim attempts when the
// queues are empty.
func WithIdleBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.idle = s }
}

// WithSweepInterval sets how often the expiry sweep runs.
func WithSweepInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.sweepInterval = d
		}
	}
}

// WithActiveDeadline sets how long a job may stay active before the sweep
// declares it abandoned.
func WithActiveDeadline(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.activeDeadline = d
		}
	}
}

// WithHeartbeatInterval sets the fleet heartbeat period.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.heartbeatInterval = d
		}
	}
}

// WithCleanupGrace sets how long terminal jobs are retained before the
// sweep purges them. Zero disables purging.
func WithCleanupGrace(d time.Duration) PoolOption {
	return func(p *Pool) { p.cleanupGrace = d }
}

// WithThrottle sets the per-type throttle manager.
func WithThrottle(m *throttle.Manager) PoolOption {
	return func(p *Pool) { p.throttle = m }
}

// WithFleet sets the fleet store for worker registration, heartbeats, and
// sweep leadership.
func WithFleet(fs fleet.Store) PoolOption {
	return func(p *Pool) { p.fleetStore = fs }
}

// WithPolicyName records the scaling policy name on the fleet entry.
func WithPolicyName(name string) PoolOption {
	return func(p *Pool) { p.policyName = name }
}

// WithLogger sets the pool's logger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a Pool with the given store and executor.
func NewPool(store job.Store, executor *Executor, hooks *hook.Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		store:             store,
		executor:          executor,
		hooks:             hooks,
		logger:            slog.Default(),
		workerID:          id.NewWorkerID(),
		types:             []string{"default"},
		concurrency:       1,
		idle:              backoff.DefaultIdle(),
		sweepInterval:     30 * time.Second,
		activeDeadline:    5 * time.Minute,
		heartbeatInterval: 10 * time.Second,
		cleanupGrace:      time.Hour,
		activeJobs:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's worker identity, set at construction and
// stamped as owner on every claim.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the claim slots, the sweep loop, and, when a fleet store
// is configured, registers the worker and starts heartbeating.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	if p.fleetStore != nil {
		hostname, _ := os.Hostname()
		w := &fleet.Worker{
			ID:          p.workerID,
			Hostname:    hostname,
			Types:       p.types,
			Concurrency: p.concurrency,
			Policy:      p.policyName,
			State:       fleet.WorkerStateActive,
		}
		if err := p.fleetStore.RegisterWorker(ctx, w); err != nil {
			p.logger.Warn("fleet registration failed",
				slog.String("worker_id", p.workerID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			p.wg.Add(1)
			go p.heartbeatLoop()
		}
	}

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.claimLoop(i)
	}

	p.wg.Add(1)
	go p.sweepLoop()

	p.logger.Info("worker pool started",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("types", p.types),
	)
	return nil
}

// Stop shuts the pool down. It stops claiming immediately, then waits for
// in-flight jobs up to the context deadline; jobs still running at the
// deadline are cancelled and left for the expiry sweep to reclaim.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("shutdown deadline reached, cancelling active jobs",
			slog.String("worker_id", p.workerID.String()),
		)
		p.cancelActiveJobs()
		<-done
	}

	if p.fleetStore != nil {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.fleetStore.DeregisterWorker(dctx, p.workerID); err != nil {
			p.logger.Warn("fleet deregistration failed",
				slog.String("worker_id", p.workerID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	p.logger.Info("worker pool stopped", slog.String("worker_id", p.workerID.String()))
	return nil
}

// claimLoop is one claim slot: claim, execute, finalize, repeat. When no
// work is available across all types it backs off before the next round.
func (p *Pool) claimLoop(slot int) {
	defer p.wg.Done()

	ctx := context.Background()
	attempt := 0

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		claimed := false
		for _, jobType := range p.types {
			if p.throttle != nil && !p.throttle.Acquire(jobType) {
				continue
			}

			j, err := p.store.ClaimJob(ctx, jobType, p.workerID)
			if err != nil {
				if p.throttle != nil {
					p.throttle.Release(jobType)
				}
				p.logger.Error("claim failed",
					slog.String("job_type", jobType),
					slog.Int("slot", slot),
					slog.String("error", err.Error()),
				)
				continue
			}
			if j == nil {
				if p.throttle != nil {
					p.throttle.Release(jobType)
				}
				continue
			}

			claimed = true
			p.hooks.EmitJobClaimed(ctx, j)
			p.runJob(ctx, j)
			if p.throttle != nil {
				p.throttle.Release(jobType)
			}
		}

		if claimed {
			attempt = 0
			continue
		}

		attempt++
		if !p.sleep(p.idle.Delay(attempt)) {
			return
		}
	}
}

// runJob executes one claimed job with a cancel registered so Stop can
// interrupt it past the shutdown deadline.
func (p *Pool) runJob(ctx context.Context, j *job.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := j.ID.String()
	p.activeMu.Lock()
	p.activeJobs[key] = cancel
	p.activeMu.Unlock()

	defer func() {
		p.activeMu.Lock()
		delete(p.activeJobs, key)
		p.activeMu.Unlock()
	}()

	if err := p.executor.Execute(jobCtx, j); err != nil {
		p.logger.Debug("job execution not finalized",
			slog.String("job_id", key),
			slog.String("error", err.Error()),
		)
	}
}

// sweepLoop periodically reclaims jobs whose active deadline passed and
// purges old terminal jobs. With a fleet store the sweep is leader-gated
// so only one worker per fleet runs it; without one every worker sweeps,
// which is safe because the sweep is idempotent.
func (p *Pool) sweepLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), p.sweepInterval)
	defer cancel()

	if p.fleetStore != nil && !p.holdLeadership(ctx) {
		return
	}

	expired, err := p.store.SweepExpired(ctx, p.activeDeadline)
	if err != nil {
		p.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, j := range expired {
		p.hooks.EmitJobTimedOut(ctx, j)
		p.logger.Warn("job timed out",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("owner", j.Owner.String()),
		)
	}

	if p.cleanupGrace > 0 {
		purged, err := p.store.PurgeTerminalJobs(ctx, p.cleanupGrace)
		if err != nil {
			p.logger.Error("terminal purge failed", slog.String("error", err.Error()))
			return
		}
		if purged > 0 {
			p.logger.Debug("purged terminal jobs", slog.Int64("count", purged))
		}
	}
}

// holdLeadership acquires or renews sweep leadership. The TTL is twice the
// sweep interval so leadership survives one missed tick.
func (p *Pool) holdLeadership(ctx context.Context) bool {
	ttl := 2 * p.sweepInterval

	ok, err := p.fleetStore.RenewLeadership(ctx, p.workerID, ttl)
	if err == nil && ok {
		return true
	}

	ok, err = p.fleetStore.AcquireLeadership(ctx, p.workerID, ttl)
	if err != nil {
		p.logger.Debug("leadership acquisition failed", slog.String("error", err.Error()))
		return false
	}
	return ok
}

func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.heartbeatInterval)
			if err := p.fleetStore.HeartbeatWorker(ctx, p.workerID); err != nil {
				p.logger.Warn("heartbeat failed",
					slog.String("worker_id", p.workerID.String()),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, cancel := range p.activeJobs {
		cancel()
	}
}

// sleep waits for d or until the pool stops. Returns false on stop.
func (p *Pool) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
