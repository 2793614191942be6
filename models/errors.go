package models

import "errors"

// Error taxonomy shared across the service layers. Handlers map these to
// HTTP status codes with errors.Is; everything else wraps them with context.
var (
	// ErrNotFound: script, sentence, session or mapping does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange: time bounds violate an invariant (start >= end,
	// negative values, or beyond the script duration). Never retried.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrUnavailable: an external collaborator (database, storage, cache
	// backend) could not be reached.
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrSessionExpired: the play session exists but its expiry has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrConnectionTimeout: a bounded call to a collaborator timed out.
	ErrConnectionTimeout = errors.New("connection timeout")
)
