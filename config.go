package quarry

import "time"

// Config holds configuration for the Coordinator.
type Config struct {
	// Types is the list of job types this coordinator's workers will claim.
	Types []string

	// ActiveDeadline is how long a job may stay active without finalizing
	// before the expiry sweep declares it timed out. This is the recovery
	// bound for crashed or hung workers, independent of any producer-side
	// await timeout.
	ActiveDeadline time.Duration

	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration

	// HeartbeatInterval is how often a worker process refreshes its
	// registration in the fleet.
	HeartbeatInterval time.Duration

	// CleanupGrace is how long terminal auto-cleanup jobs are kept for a
	// producer to observe before the sweep purges them.
	CleanupGrace time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Types:             []string{"default"},
		ActiveDeadline:    5 * time.Minute,
		SweepInterval:     30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		CleanupGrace:      time.Hour,
		ShutdownTimeout:   30 * time.Second,
	}
}
