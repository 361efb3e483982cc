package redis

// Redis key naming conventions for quarry data.
// All keys are prefixed with "quarry:" to avoid collisions.

const keyPrefix = "quarry:"

// jobKey returns the key for a job entity: quarry:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a job type's queue:
// quarry:queue:{type}
func queueKey(jobType string) string { return keyPrefix + "queue:" + jobType }

// activeKey is the Sorted Set of active job IDs scored by claim time,
// used by the expiry sweep.
const activeKey = keyPrefix + "active"

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// doneChannel returns the Pub/Sub channel for a job's terminal
// transition: quarry:done:{id}
func doneChannel(id string) string { return keyPrefix + "done:" + id }

// workerKey returns the key for a worker entity: quarry:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"

// leaderKey stores the current sweep leader worker ID.
const leaderKey = keyPrefix + "leader"
