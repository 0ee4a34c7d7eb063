package repository

import "errors"

// Sentinel kinds for history store errors.
var (
	// ErrNoIndex marks a persisted index that is missing or unusable.
	ErrNoIndex = errors.New("no usable index")

	// ErrNoRecord marks an offset that does not hold a matching record.
	ErrNoRecord = errors.New("no record at offset")
)
