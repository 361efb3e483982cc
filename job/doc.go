// Package job defines the job entity, state machine, typed definitions,
// and the store contract the queue engine is built on.
//
// # Job Entity
//
// A [Job] represents a unit of work. It carries an opaque codec-encoded
// payload, a type tag that selects the handler and partitions the queue,
// a priority, and progresses through a forward-only state machine:
//
//	created → queued → active → completed
//	created → queued → active → failed
//	created → queued → active → timed_out
//
// The three right-hand states are terminal. Result is set only on
// completed; Failure only on failed. The active → timed_out transition is
// performed by the expiry sweep when a worker crashes or hangs; it is an
// explicit reclamation, never a rollback to queued.
//
// # Defining a Job
//
// Use [Definition] with a typed handler that returns a result. The payload
// is codec-serialized at submission time and deserialized before the
// handler runs:
//
//	var Square = job.NewDefinition("math",
//	    func(ctx context.Context, in MathInput) (int, error) {
//	        return in.N * in.N, nil
//	    },
//	)
//
// # Registry
//
// [Registry] maps job types to type-erased [HandlerFunc] values.
// Register definitions at startup via [RegisterDefinition]:
//
//	job.RegisterDefinition(registry, Square)
//
// The engine package provides higher-level engine.Register and
// producer.Submit wrappers.
//
// # Store
//
// [Store] is the queue engine contract: atomic enqueue, exclusive claim,
// ownership-checked finalization, expiry sweep, and awaitable terminal
// notification. All cross-process mutual exclusion lives behind this
// interface; no component reads-then-writes a job outside of it.
package job
