package metrics

import "errors"

var (
	// ErrBucketTooLarge indicates the bucket size exceeds the window size.
	ErrBucketTooLarge = errors.New("metrics: bucket size exceeds window size")

	// ErrInvalidPercentile indicates a percentile outside (0, 100].
	ErrInvalidPercentile = errors.New("metrics: percentile out of range")

	// ErrInvalidThreshold indicates a negative anomaly threshold.
	ErrInvalidThreshold = errors.New("metrics: negative anomaly threshold")

	// ErrAlreadyStarted indicates the cleanup loop is already running.
	ErrAlreadyStarted = errors.New("metrics: collector already started")
)
