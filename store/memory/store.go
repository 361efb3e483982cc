// Package memory provides a fully in-memory store. Safe for concurrent
// access. Intended for unit testing and development; it coordinates
// goroutines within one process, never across processes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store   = (*Store)(nil)
	_ fleet.Store = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]*job.Job
	workers map[string]*fleet.Worker

	// waiters holds per-job notification channels for AwaitJob. Each
	// channel is buffered and receives a copy of the job on its terminal
	// transition.
	waiters map[string][]chan *job.Job

	// leader tracks the current sweep leader worker ID string.
	leader      string
	leaderUntil time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*job.Job),
		workers: make(map[string]*fleet.Worker),
		waiters: make(map[string][]chan *job.Job),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// EnqueueJob persists a new job in queued state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return quarry.ErrJobAlreadyExists
	}

	cp := *j
	cp.State = job.StateQueued
	m.jobs[key] = &cp

	j.State = job.StateQueued
	return nil
}

// ClaimJob atomically claims the highest-priority, earliest-created
// queued job of the given type.
func (m *Store) ClaimJob(_ context.Context, jobType string, workerID id.WorkerID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *job.Job
	for _, j := range m.jobs {
		if j.State != job.StateQueued || j.Type != jobType {
			continue
		}
		if best == nil {
			best = j
			continue
		}
		if j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	best.State = job.StateActive
	best.Owner = workerID
	best.StartedAt = &now

	// Return a copy so callers can mutate without racing with the store.
	cp := *best
	return &cp, nil
}

// CompleteJob transitions active to completed if workerID still owns the
// job.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return quarry.ErrJobNotFound
	}
	if j.State != job.StateActive || j.Owner != workerID {
		return quarry.ErrOwnershipMismatch
	}

	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.Result = result
	j.Owner = id.Nil
	j.FinishedAt = &now

	m.notifyWaiters(j)
	return nil
}

// FailJob transitions active to failed if workerID still owns the job.
func (m *Store) FailJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, failure *job.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return quarry.ErrJobNotFound
	}
	if j.State != job.StateActive || j.Owner != workerID {
		return quarry.ErrOwnershipMismatch
	}

	now := time.Now().UTC()
	j.State = job.StateFailed
	j.Failure = failure
	j.Owner = id.Nil
	j.FinishedAt = &now

	m.notifyWaiters(j)
	return nil
}

// SweepExpired reclaims active jobs whose StartedAt is older than the
// given duration, marking them timed out.
func (m *Store) SweepExpired(_ context.Context, olderThan time.Duration) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	now := time.Now().UTC()

	var reclaimed []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateActive {
			continue
		}
		if j.StartedAt == nil || !j.StartedAt.Before(cutoff) {
			continue
		}

		owner := j.Owner
		j.State = job.StateTimedOut
		j.Owner = id.Nil
		j.FinishedAt = &now

		m.notifyWaiters(j)

		// The returned copy keeps the owner whose claim was released so
		// callers can report who abandoned the job.
		cp := *j
		cp.Owner = owner
		reclaimed = append(reclaimed, &cp)
	}
	return reclaimed, nil
}

// AwaitJob blocks until the job reaches a terminal state or timeout
// elapses. Each call suspends only the calling goroutine.
func (m *Store) AwaitJob(ctx context.Context, jobID id.JobID, timeout time.Duration) (*job.Job, error) {
	key := jobID.String()

	m.mu.Lock()
	j, ok := m.jobs[key]
	if !ok {
		m.mu.Unlock()
		return nil, quarry.ErrJobNotFound
	}
	if j.State.Terminal() {
		cp := *j
		m.mu.Unlock()
		return &cp, nil
	}

	ch := make(chan *job.Job, 1)
	m.waiters[key] = append(m.waiters[key], ch)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case done := <-ch:
		return done, nil
	case <-timer.C:
		m.removeWaiter(key, ch)
		return nil, nil
	case <-ctx.Done():
		m.removeWaiter(key, ch)
		return nil, ctx.Err()
	}
}

// notifyWaiters delivers a copy of the job to every registered waiter.
// Caller must hold m.mu.
func (m *Store) notifyWaiters(j *job.Job) {
	key := j.ID.String()
	for _, ch := range m.waiters[key] {
		cp := *j
		ch <- &cp
	}
	delete(m.waiters, key)
}

// removeWaiter unregisters a waiter channel after a local timeout.
func (m *Store) removeWaiter(key string, ch chan *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chans := m.waiters[key]
	for i, c := range chans {
		if c == ch {
			m.waiters[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(m.waiters[key]) == 0 {
		delete(m.waiters, key)
	}
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, quarry.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return quarry.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeTerminalJobs deletes auto-cleanup jobs that finished more than
// olderThan ago.
func (m *Store) PurgeTerminalJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var count int64
	for key, j := range m.jobs {
		if !j.State.Terminal() || !j.AutoCleanup {
			continue
		}
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(m.jobs, key)
			count++
		}
	}
	return count, nil
}

// RegisterWorker adds a worker to the fleet registry.
func (m *Store) RegisterWorker(_ context.Context, w *fleet.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.LastSeen = now
	m.workers[w.ID.String()] = &cp
	return nil
}

// DeregisterWorker removes a worker from the fleet registry.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerID.String()
	if _, ok := m.workers[key]; !ok {
		return quarry.ErrWorkerNotFound
	}
	delete(m.workers, key)
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return quarry.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	return nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*fleet.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*fleet.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireLeadership attempts to become the sweep leader.
func (m *Store) AcquireLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	wKey := workerID.String()

	if m.leader != "" && m.leaderUntil.After(now) && m.leader != wKey {
		return false, nil
	}

	m.leader = wKey
	m.leaderUntil = now.Add(ttl)

	if w, ok := m.workers[wKey]; ok {
		w.IsLeader = true
		until := m.leaderUntil
		w.LeaderUntil = &until
	}

	return true, nil
}

// RenewLeadership extends the leader's hold.
func (m *Store) RenewLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wKey := workerID.String()
	if m.leader != wKey || m.leaderUntil.Before(time.Now().UTC()) {
		return false, nil
	}

	m.leaderUntil = time.Now().UTC().Add(ttl)

	if w, ok := m.workers[wKey]; ok {
		until := m.leaderUntil
		w.LeaderUntil = &until
	}

	return true, nil
}

// GetLeader returns the current sweep leader, or nil if there is none.
func (m *Store) GetLeader(_ context.Context) (*fleet.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leader == "" || m.leaderUntil.Before(time.Now().UTC()) {
		return nil, nil
	}

	w, ok := m.workers[m.leader]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}
