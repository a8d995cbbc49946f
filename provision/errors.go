package provision

import "errors"

var (
	// ErrPortalStartFailed is returned when the access point or the HTTP
	// listener could not be brought up.
	ErrPortalStartFailed = errors.New("portal start failed")
	// ErrConnectionAttemptFailed marks a single failed station attempt.
	ErrConnectionAttemptFailed = errors.New("connection attempt failed")
	// ErrRetryExhausted is reported when every allowed attempt failed.
	ErrRetryExhausted = errors.New("connection retries exhausted")
	// ErrPersistenceFailed is logged when working credentials could not be saved.
	ErrPersistenceFailed = errors.New("credential persistence failed")
	// ErrMalformedCredentials is returned for a stored record that cannot be used.
	ErrMalformedCredentials = errors.New("malformed stored credentials")
)
