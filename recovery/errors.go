package recovery

import "errors"

var (
	// ErrInvalidRate indicates a rate or step outside its valid range.
	ErrInvalidRate = errors.New("recovery: invalid rate")

	// ErrInvalidThreshold indicates an error-rate threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("recovery: invalid threshold")

	// ErrNoFeatures indicates a partial strategy configured without
	// features.
	ErrNoFeatures = errors.New("recovery: no features configured")

	// ErrNoGaugeSource indicates an adaptive strategy configured without
	// a gauge source.
	ErrNoGaugeSource = errors.New("recovery: no gauge source configured")
)
