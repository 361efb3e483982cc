package fleet

import (
	"time"

	"github.com/quarrylabs/quarry/id"
)

// WorkerState represents the lifecycle state of a worker process.
type WorkerState string

const (
	// WorkerStateActive means the worker is healthy and claiming jobs.
	WorkerStateActive WorkerState = "active"
	// WorkerStateDraining means the worker is finishing in-flight jobs but
	// not claiming new ones (graceful shutdown).
	WorkerStateDraining WorkerState = "draining"
)

// Worker represents one worker process in the elastic pool.
type Worker struct {
	ID          id.WorkerID `json:"id"`
	Hostname    string      `json:"hostname"`
	Types       []string    `json:"types"`
	Concurrency int         `json:"concurrency"`
	Policy      string      `json:"policy"`
	State       WorkerState `json:"state"`
	IsLeader    bool        `json:"is_leader"`
	LeaderUntil *time.Time  `json:"leader_until,omitempty"`
	LastSeen    time.Time   `json:"last_seen"`
	CreatedAt   time.Time   `json:"created_at"`
}
