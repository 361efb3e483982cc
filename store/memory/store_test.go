package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/fleet"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/store/memory"
)

func enqueue(t *testing.T, s *memory.Store, jobType string, priority int, opts ...job.Option) *job.Job {
	t.Helper()
	opts = append([]job.Option{job.WithPriority(priority)}, opts...)
	j := job.New(jobType, []byte(`{}`), opts...)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	return j
}

func TestEnqueueJob_SetsQueuedState(t *testing.T) {
	s := memory.New()
	j := enqueue(t, s, "math", 0)

	if j.State != job.StateQueued {
		t.Errorf("state = %q, want %q", j.State, job.StateQueued)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.State != job.StateQueued {
		t.Errorf("stored state = %q, want %q", got.State, job.StateQueued)
	}
}

func TestEnqueueJob_DuplicateID(t *testing.T) {
	s := memory.New()
	j := enqueue(t, s, "math", 0)

	if err := s.EnqueueJob(context.Background(), j); !errors.Is(err, quarry.ErrJobAlreadyExists) {
		t.Errorf("duplicate enqueue error = %v, want ErrJobAlreadyExists", err)
	}
}

func TestClaimJob_PriorityOrder(t *testing.T) {
	s := memory.New()
	low := enqueue(t, s, "math", 1)
	high := enqueue(t, s, "math", 10)
	mid := enqueue(t, s, "math", 5)

	w := id.NewWorkerID()
	want := []id.JobID{high.ID, mid.ID, low.ID}
	for i, wantID := range want {
		j, err := s.ClaimJob(context.Background(), "math", w)
		if err != nil {
			t.Fatalf("claim %d error: %v", i, err)
		}
		if j == nil {
			t.Fatalf("claim %d returned nil, want job", i)
		}
		if j.ID != wantID {
			t.Errorf("claim %d = %s, want %s", i, j.ID, wantID)
		}
		if j.State != job.StateActive {
			t.Errorf("claim %d state = %q, want %q", i, j.State, job.StateActive)
		}
		if j.Owner != w {
			t.Errorf("claim %d owner = %s, want %s", i, j.Owner, w)
		}
	}
}

func TestClaimJob_FIFOWithinPriority(t *testing.T) {
	s := memory.New()

	first := job.New("math", []byte(`{}`), job.WithPriority(3))
	second := job.New("math", []byte(`{}`), job.WithPriority(3))
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)

	// Enqueue out of creation order.
	for _, j := range []*job.Job{second, first} {
		if err := s.EnqueueJob(context.Background(), j); err != nil {
			t.Fatalf("enqueue error: %v", err)
		}
	}

	w := id.NewWorkerID()
	j, err := s.ClaimJob(context.Background(), "math", w)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if j.ID != first.ID {
		t.Errorf("claimed %s, want earliest-created %s", j.ID, first.ID)
	}
}

func TestClaimJob_EmptyAndTypeIsolation(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "video", 0)

	w := id.NewWorkerID()
	j, err := s.ClaimJob(context.Background(), "math", w)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if j != nil {
		t.Errorf("claimed job of wrong type: %s (%s)", j.ID, j.Type)
	}
}

func TestCompleteJob_OwnershipEnforced(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "math", 0)

	owner := id.NewWorkerID()
	other := id.NewWorkerID()

	j, err := s.ClaimJob(context.Background(), "math", owner)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}

	err = s.CompleteJob(context.Background(), j.ID, other, []byte(`25`))
	if !errors.Is(err, quarry.ErrOwnershipMismatch) {
		t.Fatalf("complete by non-owner error = %v, want ErrOwnershipMismatch", err)
	}

	// The rejected write must leave the job untouched.
	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateActive || got.Owner != owner {
		t.Errorf("job mutated by rejected write: state=%q owner=%s", got.State, got.Owner)
	}

	if err := s.CompleteJob(context.Background(), j.ID, owner, []byte(`25`)); err != nil {
		t.Fatalf("complete by owner error: %v", err)
	}

	got, _ = s.GetJob(context.Background(), j.ID)
	if got.State != job.StateCompleted {
		t.Errorf("state = %q, want %q", got.State, job.StateCompleted)
	}
	if string(got.Result) != `25` {
		t.Errorf("result = %q, want %q", got.Result, `25`)
	}
	if !got.Owner.IsNil() {
		t.Errorf("owner not cleared: %s", got.Owner)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestFailJob_RecordsFailure(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "math", 0)

	w := id.NewWorkerID()
	j, _ := s.ClaimJob(context.Background(), "math", w)

	failure := &job.Failure{Kind: "handler", Message: "division by zero"}
	if err := s.FailJob(context.Background(), j.ID, w, failure); err != nil {
		t.Fatalf("fail error: %v", err)
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Errorf("state = %q, want %q", got.State, job.StateFailed)
	}
	if got.Failure == nil || got.Failure.Message != "division by zero" {
		t.Errorf("failure = %+v, want message %q", got.Failure, "division by zero")
	}

	// A second finalize on a terminal job is rejected.
	err := s.CompleteJob(context.Background(), j.ID, w, []byte(`1`))
	if !errors.Is(err, quarry.ErrOwnershipMismatch) {
		t.Errorf("finalize on terminal job error = %v, want ErrOwnershipMismatch", err)
	}
}

func TestSweepExpired_ReclaimsAndIsIdempotent(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "math", 0)

	w := id.NewWorkerID()
	j, _ := s.ClaimJob(context.Background(), "math", w)

	time.Sleep(5 * time.Millisecond)

	reclaimed, err := s.SweepExpired(context.Background(), time.Millisecond)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != j.ID {
		t.Fatalf("reclaimed = %v, want [%s]", reclaimed, j.ID)
	}
	// The returned job reports whose claim was released.
	if reclaimed[0].Owner != w {
		t.Errorf("reclaimed owner = %v, want %v", reclaimed[0].Owner, w)
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateTimedOut {
		t.Errorf("state = %q, want %q", got.State, job.StateTimedOut)
	}
	if !got.Owner.IsNil() {
		t.Errorf("owner not released: %s", got.Owner)
	}

	// Running the sweep again reclaims nothing.
	reclaimed, err = s.SweepExpired(context.Background(), time.Millisecond)
	if err != nil {
		t.Fatalf("second sweep error: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Errorf("second sweep reclaimed %d jobs, want 0", len(reclaimed))
	}

	// The original worker's late result is discarded.
	err = s.CompleteJob(context.Background(), j.ID, w, []byte(`1`))
	if !errors.Is(err, quarry.ErrOwnershipMismatch) {
		t.Errorf("late finalize error = %v, want ErrOwnershipMismatch", err)
	}
}

func TestSweepExpired_SparesRecentClaims(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "math", 0)

	w := id.NewWorkerID()
	j, _ := s.ClaimJob(context.Background(), "math", w)

	reclaimed, err := s.SweepExpired(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Errorf("sweep reclaimed %d jobs, want 0", len(reclaimed))
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateActive {
		t.Errorf("state = %q, want %q", got.State, job.StateActive)
	}
}

func TestAwaitJob_WakesOnCompletion(t *testing.T) {
	s := memory.New()
	j := enqueue(t, s, "math", 0)

	w := id.NewWorkerID()
	go func() {
		time.Sleep(20 * time.Millisecond)
		claimed, _ := s.ClaimJob(context.Background(), "math", w)
		_ = s.CompleteJob(context.Background(), claimed.ID, w, []byte(`25`))
	}()

	got, err := s.AwaitJob(context.Background(), j.ID, 2*time.Second)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if got == nil {
		t.Fatal("await returned nil, want completed job")
	}
	if got.State != job.StateCompleted {
		t.Errorf("state = %q, want %q", got.State, job.StateCompleted)
	}
	if string(got.Result) != `25` {
		t.Errorf("result = %q, want %q", got.Result, `25`)
	}
}

func TestAwaitJob_LocalTimeoutLeavesJobUntouched(t *testing.T) {
	s := memory.New()
	j := enqueue(t, s, "math", 0)

	got, err := s.AwaitJob(context.Background(), j.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if got != nil {
		t.Fatalf("await returned %v, want nil on timeout", got)
	}

	after, _ := s.GetJob(context.Background(), j.ID)
	if after.State != job.StateQueued {
		t.Errorf("state = %q, want %q (untouched)", after.State, job.StateQueued)
	}
}

func TestAwaitJob_AlreadyTerminal(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "math", 0)

	w := id.NewWorkerID()
	j, _ := s.ClaimJob(context.Background(), "math", w)
	_ = s.CompleteJob(context.Background(), j.ID, w, []byte(`1`))

	got, err := s.AwaitJob(context.Background(), j.ID, time.Millisecond)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if got == nil || got.State != job.StateCompleted {
		t.Errorf("await = %v, want completed job immediately", got)
	}
}

func TestAwaitJob_UnknownID(t *testing.T) {
	s := memory.New()
	_, err := s.AwaitJob(context.Background(), id.NewJobID(), time.Millisecond)
	if !errors.Is(err, quarry.ErrJobNotFound) {
		t.Errorf("await unknown id error = %v, want ErrJobNotFound", err)
	}
}

func TestPurgeTerminalJobs_OnlyOldAutoCleanup(t *testing.T) {
	s := memory.New()
	auto := enqueue(t, s, "math", 0, job.WithAutoCleanup())
	keep := enqueue(t, s, "math", 0)

	w := id.NewWorkerID()
	for range 2 {
		j, _ := s.ClaimJob(context.Background(), "math", w)
		_ = s.CompleteJob(context.Background(), j.ID, w, []byte(`1`))
	}

	time.Sleep(10 * time.Millisecond)

	n, err := s.PurgeTerminalJobs(context.Background(), 5*time.Millisecond)
	if err != nil {
		t.Fatalf("purge error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d jobs, want 1", n)
	}

	if _, err := s.GetJob(context.Background(), auto.ID); !errors.Is(err, quarry.ErrJobNotFound) {
		t.Errorf("auto-cleanup job still present, get error = %v", err)
	}
	if _, err := s.GetJob(context.Background(), keep.ID); err != nil {
		t.Errorf("non-auto-cleanup job purged: %v", err)
	}
}

func TestListAndCountJobs(t *testing.T) {
	s := memory.New()
	enqueue(t, s, "math", 0)
	enqueue(t, s, "math", 0)
	enqueue(t, s, "video", 0)

	jobs, err := s.ListJobsByState(context.Background(), job.StateQueued, job.ListOpts{Type: "math"})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("list returned %d jobs, want 2", len(jobs))
	}

	n, err := s.CountJobs(context.Background(), job.CountOpts{State: job.StateQueued})
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func registerWorker(t *testing.T, s *memory.Store) *fleet.Worker {
	t.Helper()
	w := &fleet.Worker{
		ID:          id.NewWorkerID(),
		Hostname:    "test-host",
		Types:       []string{"math"},
		Concurrency: 4,
		Policy:      "fixed",
		State:       fleet.WorkerStateActive,
	}
	if err := s.RegisterWorker(context.Background(), w); err != nil {
		t.Fatalf("register error: %v", err)
	}
	return w
}

func TestFleetRegistry(t *testing.T) {
	s := memory.New()
	w1 := registerWorker(t, s)
	registerWorker(t, s)

	workers, err := s.ListWorkers(context.Background())
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("list returned %d workers, want 2", len(workers))
	}

	if err := s.HeartbeatWorker(context.Background(), w1.ID); err != nil {
		t.Errorf("heartbeat error: %v", err)
	}

	if err := s.DeregisterWorker(context.Background(), w1.ID); err != nil {
		t.Errorf("deregister error: %v", err)
	}
	err = s.DeregisterWorker(context.Background(), w1.ID)
	if !errors.Is(err, quarry.ErrWorkerNotFound) {
		t.Errorf("double deregister error = %v, want ErrWorkerNotFound", err)
	}
}

func TestLeadership_ExclusiveUntilExpiry(t *testing.T) {
	s := memory.New()
	w1 := registerWorker(t, s)
	w2 := registerWorker(t, s)

	ok, err := s.AcquireLeadership(context.Background(), w1.ID, 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("w1 acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, _ = s.AcquireLeadership(context.Background(), w2.ID, 50*time.Millisecond)
	if ok {
		t.Error("w2 acquired leadership while w1 holds it")
	}

	ok, _ = s.RenewLeadership(context.Background(), w1.ID, 50*time.Millisecond)
	if !ok {
		t.Error("w1 renew failed while holding leadership")
	}
	ok, _ = s.RenewLeadership(context.Background(), w2.ID, 50*time.Millisecond)
	if ok {
		t.Error("w2 renewed leadership it does not hold")
	}

	leader, err := s.GetLeader(context.Background())
	if err != nil {
		t.Fatalf("get leader error: %v", err)
	}
	if leader == nil || leader.ID != w1.ID {
		t.Errorf("leader = %v, want %s", leader, w1.ID)
	}

	// After the TTL lapses, leadership is up for grabs.
	time.Sleep(60 * time.Millisecond)
	ok, _ = s.AcquireLeadership(context.Background(), w2.ID, 50*time.Millisecond)
	if !ok {
		t.Error("w2 could not acquire expired leadership")
	}
}
