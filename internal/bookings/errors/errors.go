package errors

import "errors"

var (
	ErrInvalidID = errors.New("invalid schedule ID format")

	// ErrCountMismatch means a bulk cancellation touched a different number
	// of bookings than it read inside the same transaction.
	ErrCountMismatch = errors.New("cancelled booking count does not match confirmed bookings")
)
