package portal

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while the listener is up.
	ErrAlreadyRunning = errors.New("portal already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("portal not running")
	// ErrAlreadyRegistered is returned when a method and path pair is registered twice.
	ErrAlreadyRegistered = errors.New("route already registered")
)
