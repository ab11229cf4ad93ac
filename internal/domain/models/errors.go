package models

import "errors"

var (
	// ErrInvalidInput marks a request whose shape is wrong: bad timestamps,
	// non-finite values, unparsable durations, missing training series.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData marks a well-formed request whose data is too short
	// for the requested window.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrKernelUnavailable marks a failure reaching an external scoring kernel.
	ErrKernelUnavailable = errors.New("kernel unavailable")
)
