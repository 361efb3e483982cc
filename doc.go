// Package quarry provides a store-coordinated, prioritized job queue for
// offloading CPU-bound work from request-serving processes.
//
// Quarry is designed as a library, not a service. Producers submit jobs and
// await their outcome without blocking unrelated requests; workers claim
// jobs from a shared store, execute registered handlers, and report results
// back through the same store. Because all coordination happens through
// atomic store operations, worker processes can be added on any machine
// that can reach the store; claim throughput scales with process count
// with no change to producer or engine code.
//
// # Quick Start
//
//	c, err := quarry.New(
//	    quarry.WithStore(redisStore),
//	    quarry.WithTypes([]string{"math"}),
//	)
//	eng, err := engine.Build(c)
//	engine.Register(eng, job.NewDefinition("math", square))
//	err = eng.Start(ctx)
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package quarry
