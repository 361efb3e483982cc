package backoff_test

import (
	"testing"
	"time"

	"github.com/quarrylabs/quarry/backoff"
)

func TestConstant(t *testing.T) {
	s := backoff.NewConstant(100 * time.Millisecond)
	for _, attempt := range []int{1, 2, 10} {
		if got := s.Delay(attempt); got != 100*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 100ms", attempt, got)
		}
	}
}

func TestLinear(t *testing.T) {
	s := backoff.NewLinear(50*time.Millisecond, 200*time.Millisecond)
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{4, 200 * time.Millisecond},
		{10, 200 * time.Millisecond}, // capped
	}
	for _, tc := range cases {
		if got := s.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponential(t *testing.T) {
	s := backoff.NewExponential(10*time.Millisecond, 100*time.Millisecond)
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{5, 100 * time.Millisecond}, // capped
	}
	for _, tc := range cases {
		if got := s.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialWithJitter_Bounds(t *testing.T) {
	s := backoff.NewExponentialWithJitter(10*time.Millisecond, 80*time.Millisecond)
	for attempt := 1; attempt <= 8; attempt++ {
		ceiling := 10 * time.Millisecond << (attempt - 1)
		if ceiling > 80*time.Millisecond {
			ceiling = 80 * time.Millisecond
		}
		for range 50 {
			got := s.Delay(attempt)
			if got < 0 || got > ceiling {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, got, ceiling)
			}
		}
	}
}

func TestDefaultIdle(t *testing.T) {
	s := backoff.DefaultIdle()
	for attempt := 1; attempt <= 20; attempt++ {
		got := s.Delay(attempt)
		if got < 0 || got > 2*time.Second {
			t.Fatalf("Delay(%d) = %v, want in [0, 2s]", attempt, got)
		}
	}
}
