package throttle_test

import (
	"testing"

	"github.com/quarrylabs/quarry/throttle"
)

func TestAcquire_UnlimitedType(t *testing.T) {
	m := throttle.NewManager()
	for range 10 {
		if !m.Acquire("anything") {
			t.Fatal("unconfigured type was throttled")
		}
	}
}

func TestAcquire_ConcurrencyCap(t *testing.T) {
	m := throttle.NewManager(throttle.Config{Type: "video", MaxConcurrency: 2})

	if !m.Acquire("video") || !m.Acquire("video") {
		t.Fatal("acquires under the cap were rejected")
	}
	if m.Acquire("video") {
		t.Fatal("acquire over the cap succeeded")
	}
	if got := m.ActiveCount("video"); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}

	m.Release("video")
	if !m.Acquire("video") {
		t.Error("acquire after release was rejected")
	}
}

func TestAcquire_RateLimit(t *testing.T) {
	m := throttle.NewManager(throttle.Config{Type: "email", RateLimit: 1, RateBurst: 2})

	// The burst allows two immediate claims; the third exceeds the rate.
	if !m.Acquire("email") || !m.Acquire("email") {
		t.Fatal("burst acquires were rejected")
	}
	if m.Acquire("email") {
		t.Error("acquire past the burst succeeded")
	}
}

func TestRelease_NeverGoesNegative(t *testing.T) {
	m := throttle.NewManager(throttle.Config{Type: "video", MaxConcurrency: 1})

	m.Release("video")
	if got := m.ActiveCount("video"); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
	if !m.Acquire("video") {
		t.Error("acquire after spurious release was rejected")
	}
}

func TestSetConfig_PreservesActiveCount(t *testing.T) {
	m := throttle.NewManager(throttle.Config{Type: "video", MaxConcurrency: 1})

	if !m.Acquire("video") {
		t.Fatal("initial acquire rejected")
	}

	m.SetConfig(throttle.Config{Type: "video", MaxConcurrency: 3})
	if got := m.ActiveCount("video"); got != 1 {
		t.Errorf("active after reconfigure = %d, want 1", got)
	}
	if !m.Acquire("video") || !m.Acquire("video") {
		t.Error("acquires under the raised cap were rejected")
	}
	if m.Acquire("video") {
		t.Error("acquire over the raised cap succeeded")
	}
}
