package stats

import "errors"

var (
	// ErrStoreUnavailable is returned when the counter store cannot be reached
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrMalformedKey is returned when a counter key does not follow the key format
	ErrMalformedKey = errors.New("malformed counter key")

	// ErrInvalidBookID is returned for non-positive book IDs
	ErrInvalidBookID = errors.New("invalid book id")
)
