package timeout

import "errors"

var (
	// ErrTimeout indicates the operation exceeded the computed timeout.
	ErrTimeout = errors.New("timeout: deadline exceeded")

	// ErrInvalidBounds indicates MinTimeout exceeds MaxTimeout.
	ErrInvalidBounds = errors.New("timeout: min timeout exceeds max timeout")

	// ErrInvalidPercentile indicates a percentile outside (0, 100].
	ErrInvalidPercentile = errors.New("timeout: percentile out of range")

	// ErrInvalidFactor indicates a negative adjustment factor.
	ErrInvalidFactor = errors.New("timeout: negative adjustment factor")

	// ErrUnknownStrategy indicates an unrecognized strategy name or value.
	ErrUnknownStrategy = errors.New("timeout: unknown strategy")
)
