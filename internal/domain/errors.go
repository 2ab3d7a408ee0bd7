package domain

import "errors"

var (
	// ErrValidation marks caller input that fails domain validation.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing entity lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state transition that lost to a concurrent one.
	ErrConflict = errors.New("conflict")
	// ErrQueueUnavailable marks scheduling infrastructure being down at
	// enqueue time. This is the only error class surfaced to API callers.
	ErrQueueUnavailable = errors.New("queue unavailable")
)
