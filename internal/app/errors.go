package service

import "errors"

// Sentinel kinds for engine errors.
var (
	// ErrBlankQuery marks a lookup with a blank currency or event name.
	ErrBlankQuery = errors.New("currency and event name must not be blank")

	// ErrNotStarted marks a call made before Start.
	ErrNotStarted = errors.New("engine not started")
)
