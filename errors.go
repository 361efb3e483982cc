package quarry

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("quarry: no store configured")
	ErrStoreClosed = errors.New("quarry: store closed")

	// Not found errors.
	ErrJobNotFound    = errors.New("quarry: job not found")
	ErrWorkerNotFound = errors.New("quarry: worker not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("quarry: job already exists")

	// ErrOwnershipMismatch is returned when a worker attempts to finalize a
	// job it no longer owns, typically after the expiry sweep reclaimed the
	// job and released its ownership. The attempting worker's result is
	// discarded and never retried.
	ErrOwnershipMismatch = errors.New("quarry: job ownership mismatch")

	// State errors.
	ErrInvalidTransition = errors.New("quarry: invalid state transition")

	// ErrNoHandler is returned when a claimed job's type has no handler
	// registered in this runtime.
	ErrNoHandler = errors.New("quarry: no handler registered for job type")
)
