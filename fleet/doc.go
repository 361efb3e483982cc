// Package fleet provides the shared-store view of the elastic worker pool:
// worker registration, liveness heartbeats, and sweep leadership.
//
// Every worker process registers itself as a [Worker] with a unique
// [id.WorkerID], its hostname, the job types it claims, and its slot
// count. Workers heartbeat periodically; a worker whose heartbeat stops is
// simply a dead claimant; its in-flight jobs are recovered by the expiry
// sweep, not by the fleet.
//
// # Sweep leadership
//
// Any process may run the expiry sweep (it is idempotent), but running it
// everywhere wastes store round trips. One worker at a time holds sweep
// leadership via [Store.AcquireLeadership] with a TTL; followers skip
// their sweep tick. Leadership is an optimization, never a correctness
// requirement.
package fleet
