// Package scale defines the policies that size the worker pool.
//
// A policy answers one question: how many claim slots should this process
// run. The trade-off is explicit:
//
//   - [Fixed] gives one slot per execution unit on a single machine. The
//     first GOMAXPROCS concurrent jobs get minimum latency; everything
//     beyond that bound waits. Adding slots beyond execution units does
//     NOT add CPU throughput; extra in-process slots only help I/O-bound
//     handlers.
//
//   - [Elastic] runs a configured slot count per process and expects the
//     operator to launch as many processes, on as many machines, as
//     needed. Because every worker coordinates only through the shared
//     store, claim throughput scales linearly with process count up to
//     store capacity, with no change to producer or engine code.
//
// Queue correctness never depends on the policy: the store contract holds
// under an arbitrary, dynamically changing number of claimants.
package scale

import "runtime"

// Policy decides how many claim slots a worker process runs.
type Policy interface {
	// Concurrency returns the number of claim slots for this process.
	Concurrency() int

	// Name returns the policy identifier for logs and fleet records.
	Name() string
}

// Fixed sizes the pool to the machine: one claim slot per execution unit.
// This is the right policy for CPU-bound handlers on a single machine.
type Fixed struct{}

// Concurrency returns GOMAXPROCS, one slot per unit capable of true
// parallel computation.
func (Fixed) Concurrency() int { return runtime.GOMAXPROCS(0) }

// Name returns "fixed".
func (Fixed) Name() string { return "fixed" }

// Elastic runs a configured slot count per process. Scale out by starting
// more processes against the same store, on any number of machines.
type Elastic struct {
	// PerProcess is the number of claim slots per process. Zero falls
	// back to GOMAXPROCS.
	PerProcess int
}

// Concurrency returns the configured per-process slot count.
func (e Elastic) Concurrency() int {
	if e.PerProcess > 0 {
		return e.PerProcess
	}
	return runtime.GOMAXPROCS(0)
}

// Name returns "elastic".
func (Elastic) Name() string { return "elastic" }
