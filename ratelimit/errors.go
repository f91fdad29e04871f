package ratelimit

import "errors"

var (
	// ErrLimited indicates a request rejected by the rate limiter.
	ErrLimited = errors.New("ratelimit: limit exceeded")

	// ErrInvalidRate indicates a non-positive requests-per-second rate.
	ErrInvalidRate = errors.New("ratelimit: invalid rate")

	// ErrInvalidBounds indicates min/max rate bounds that exclude each
	// other or the starting rate.
	ErrInvalidBounds = errors.New("ratelimit: invalid rate bounds")

	// ErrInvalidScaleFactor indicates a scale factor at or below 1.
	ErrInvalidScaleFactor = errors.New("ratelimit: invalid scale factor")

	// ErrInvalidThreshold indicates an error-rate threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("ratelimit: invalid threshold")

	// ErrUnknownAlgorithm indicates an unrecognized algorithm name.
	ErrUnknownAlgorithm = errors.New("ratelimit: unknown algorithm")
)
