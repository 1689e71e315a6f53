package correction

import "errors"

var (
	// ErrInvalidInput is returned for empty series or non-finite values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLengthMismatch is returned when series that must be paired
	// index-by-index have different lengths.
	ErrLengthMismatch = errors.New("length mismatch")
)
