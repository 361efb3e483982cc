package scale_test

import (
	"runtime"
	"testing"

	"github.com/quarrylabs/quarry/scale"
)

func TestFixed(t *testing.T) {
	p := scale.Fixed{}
	if got, want := p.Concurrency(), runtime.GOMAXPROCS(0); got != want {
		t.Errorf("Concurrency() = %d, want %d", got, want)
	}
	if got := p.Name(); got != "fixed" {
		t.Errorf("Name() = %q, want %q", got, "fixed")
	}
}

func TestElastic(t *testing.T) {
	p := scale.Elastic{PerProcess: 8}
	if got := p.Concurrency(); got != 8 {
		t.Errorf("Concurrency() = %d, want 8", got)
	}
	if got := p.Name(); got != "elastic" {
		t.Errorf("Name() = %q, want %q", got, "elastic")
	}
}

func TestElastic_ZeroFallsBackToGOMAXPROCS(t *testing.T) {
	p := scale.Elastic{}
	if got, want := p.Concurrency(), runtime.GOMAXPROCS(0); got != want {
		t.Errorf("Concurrency() = %d, want %d", got, want)
	}
}
