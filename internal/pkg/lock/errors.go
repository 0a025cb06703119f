package lock

import "errors"

// Lock-related errors.
var (
	// ErrBusy is returned when the user already has a request in flight.
	ErrBusy = errors.New("request already in progress")
)
