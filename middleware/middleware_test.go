package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/middleware"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Job, next middleware.Handler) ([]byte, error) {
			order = append(order, name+":before")
			out, err := next(ctx)
			order = append(order, name+":after")
			return out, err
		}
	}

	chain := middleware.Chain(mk("outer"), mk("inner"))
	j := job.New("noop", nil)

	got, err := chain(context.Background(), j, func(_ context.Context) ([]byte, error) {
		order = append(order, "handler")
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}
	if string(got) != "ok" {
		t.Errorf("result = %q, want %q", got, "ok")
	}

	want := "outer:before,inner:before,handler,inner:after,outer:after"
	if joined := strings.Join(order, ","); joined != want {
		t.Errorf("order = %s, want %s", joined, want)
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	j := job.New("noop", nil)

	got, err := chain(context.Background(), j, func(_ context.Context) ([]byte, error) {
		return []byte("direct"), nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}
	if string(got) != "direct" {
		t.Errorf("result = %q, want %q", got, "direct")
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(quietLogger())
	j := job.New("boom", nil)

	out, err := mw(context.Background(), j, func(_ context.Context) ([]byte, error) {
		panic("exploded")
	})
	if err == nil {
		t.Fatal("panic did not surface as error")
	}
	if !strings.Contains(err.Error(), "exploded") {
		t.Errorf("error = %v, want panic value included", err)
	}
	if out != nil {
		t.Errorf("result = %q, want nil after panic", out)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(quietLogger())
	j := job.New("calm", nil)

	out, err := mw(context.Background(), j, func(_ context.Context) ([]byte, error) {
		return []byte("fine"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "fine" {
		t.Errorf("result = %q, want %q", out, "fine")
	}
}

func TestDeadline_CancelsSlowHandler(t *testing.T) {
	mw := middleware.Deadline(20 * time.Millisecond)
	j := job.New("slow", nil)

	_, err := mw(context.Background(), j, func(ctx context.Context) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return []byte("too late"), nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestDeadline_ZeroDisablesLimit(t *testing.T) {
	mw := middleware.Deadline(0)
	j := job.New("free", nil)

	out, err := mw(context.Background(), j, func(ctx context.Context) ([]byte, error) {
		if _, ok := ctx.Deadline(); ok {
			return nil, errors.New("unexpected deadline")
		}
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "ok" {
		t.Errorf("result = %q, want %q", out, "ok")
	}
}

func TestLogging_PassesThroughErrors(t *testing.T) {
	mw := middleware.Logging(quietLogger())
	j := job.New("failing", nil)

	handlerErr := errors.New("handler broke")
	_, err := mw(context.Background(), j, func(_ context.Context) ([]byte, error) {
		return nil, handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Errorf("error = %v, want %v", err, handlerErr)
	}
}
