package producer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/codec"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/producer"
	"github.com/quarrylabs/quarry/store/memory"
)

type squareReq struct {
	N int `json:"n"`
}

type squareResp struct {
	NSquared int `json:"n_squared"`
}

// completeSquare plays the worker side: claim the job, square the
// payload, finalize. Safe to call from a goroutine.
func completeSquare(s *memory.Store) error {
	ctx := context.Background()
	w := id.NewWorkerID()

	j, err := s.ClaimJob(ctx, "square", w)
	if err != nil {
		return err
	}
	if j == nil {
		return quarry.ErrJobNotFound
	}

	var req squareReq
	if err := (codec.JSON{}).Unmarshal(j.Payload, &req); err != nil {
		return err
	}
	result, err := (codec.JSON{}).Marshal(squareResp{NSquared: req.N * req.N})
	if err != nil {
		return err
	}

	return s.CompleteJob(ctx, j.ID, w, result)
}

func TestSubmitAndAwait_Completed(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 5})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = completeSquare(s)
	}()

	out, err := p.Await(context.Background(), h, 2*time.Second)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if out.Status != producer.StatusCompleted || !out.Terminal {
		t.Fatalf("outcome = %+v, want terminal completed", out)
	}

	var resp squareResp
	if err := p.DecodeResult(out, &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.NSquared != 25 {
		t.Errorf("result = %d, want 25", resp.NSquared)
	}
}

func TestAwait_LocalTimeoutThenCompleted(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 3})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	// First wait expires locally; the job is untouched.
	out, err := p.Await(context.Background(), h, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if out.Status != producer.StatusTimedOut || out.Terminal {
		t.Fatalf("outcome = %+v, want non-terminal timed out", out)
	}

	// The job can still complete, and a second await observes it.
	if err := completeSquare(s); err != nil {
		t.Fatalf("worker side: %v", err)
	}

	out, err = p.Await(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("second await error: %v", err)
	}
	if out.Status != producer.StatusCompleted || !out.Terminal {
		t.Errorf("second outcome = %+v, want terminal completed", out)
	}
}

func TestAwait_Failed(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 1})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	w := id.NewWorkerID()
	j, _ := s.ClaimJob(context.Background(), "square", w)
	failure := &job.Failure{Kind: "handler", Message: "overflow"}
	if err := s.FailJob(context.Background(), j.ID, w, failure); err != nil {
		t.Fatalf("fail: %v", err)
	}

	out, err := p.Await(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if out.Status != producer.StatusFailed || !out.Terminal {
		t.Fatalf("outcome = %+v, want terminal failed", out)
	}
	if out.Failure == nil || out.Failure.Message != "overflow" {
		t.Errorf("failure = %+v, want message %q", out.Failure, "overflow")
	}

	// A failed outcome carries no result to decode.
	var resp squareResp
	if err := p.DecodeResult(out, &resp); err == nil {
		t.Error("DecodeResult on failed outcome succeeded, want error")
	}
}

func TestAwait_SweptJobIsTerminalTimedOut(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 2})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	w := id.NewWorkerID()
	if _, err := s.ClaimJob(context.Background(), "square", w); err != nil {
		t.Fatalf("claim: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.SweepExpired(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	out, err := p.Await(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if out.Status != producer.StatusTimedOut || !out.Terminal {
		t.Errorf("outcome = %+v, want terminal timed out", out)
	}
}

func TestAutoCleanup_DeletesAfterObservation(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 4},
		job.WithAutoCleanup())
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	if err := completeSquare(s); err != nil {
		t.Fatalf("worker side: %v", err)
	}

	out, err := p.Await(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if out.Status != producer.StatusCompleted {
		t.Fatalf("outcome = %+v, want completed", out)
	}

	_, err = s.GetJob(context.Background(), h.JobID)
	if !errors.Is(err, quarry.ErrJobNotFound) {
		t.Errorf("job still present after observed auto-cleanup, get error = %v", err)
	}
}

func TestResubmit_ClonesTerminalJob(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 9},
		job.WithPriority(7))
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	// Resubmitting a non-terminal job is rejected.
	if _, err := p.Resubmit(context.Background(), h.JobID); !errors.Is(err, quarry.ErrInvalidTransition) {
		t.Errorf("resubmit queued job error = %v, want ErrInvalidTransition", err)
	}

	w := id.NewWorkerID()
	j, _ := s.ClaimJob(context.Background(), "square", w)
	if err := s.FailJob(context.Background(), j.ID, w, &job.Failure{Kind: "handler", Message: "x"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	h2, err := p.Resubmit(context.Background(), h.JobID)
	if err != nil {
		t.Fatalf("resubmit error: %v", err)
	}
	if h2.JobID == h.JobID {
		t.Error("resubmit reused the source job ID")
	}

	clone, err := s.GetJob(context.Background(), h2.JobID)
	if err != nil {
		t.Fatalf("get clone: %v", err)
	}
	if clone.State != job.StateQueued {
		t.Errorf("clone state = %q, want queued", clone.State)
	}
	if clone.Priority != 7 {
		t.Errorf("clone priority = %d, want 7", clone.Priority)
	}
	if string(clone.Payload) != string(j.Payload) {
		t.Errorf("clone payload = %q, want %q", clone.Payload, j.Payload)
	}
}

func TestLookup_BuildsHandleForForeignJob(t *testing.T) {
	s := memory.New()
	p := producer.New(s)

	h, err := producer.Submit(context.Background(), p, "square", squareReq{N: 6})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	// A second producer (another process in production) awaits by ID.
	p2 := producer.New(s)
	h2, err := p2.Lookup(context.Background(), h.JobID)
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}

	if err := completeSquare(s); err != nil {
		t.Fatalf("worker side: %v", err)
	}

	out, err := p2.Await(context.Background(), h2, time.Second)
	if err != nil {
		t.Fatalf("await error: %v", err)
	}
	if out.Status != producer.StatusCompleted {
		t.Errorf("outcome = %+v, want completed", out)
	}
}
