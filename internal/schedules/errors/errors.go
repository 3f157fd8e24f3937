package errors

import "errors"

var (
	ErrInvalidID = errors.New("invalid schedule ID format")

	// ErrNotSchedulable means the schedule left SCHEDULED before it could be claimed.
	ErrNotSchedulable = errors.New("schedule is no longer in SCHEDULED status")

	// ErrConcurrentUpdate means the schedule version moved under a claimed update.
	ErrConcurrentUpdate = errors.New("schedule was modified concurrently")
)
