package recovery

import (
	"context"
	"fmt"
	"math"
	"time"
)

// BackoffConfig configures an ExponentialBackoff strategy.
type BackoffConfig struct {
	// BaseDelay is the delay before the first probe; it doubles with
	// each failed attempt. Default: 30s
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Default: 10m
	MaxDelay time.Duration

	// MaxRetries is the last attempt number for which a probe is
	// permitted. Default: 5
	MaxRetries int

	// SuccessThreshold is the consecutive successes required to report
	// full recovery. Default: 2
	SuccessThreshold int

	// ProbeRate is the traffic fraction admitted once the delay gate
	// opens. Default: 1.0
	ProbeRate float64

	// Threshold is the error-rate threshold for opening the circuit.
	// Default: 0.5
	Threshold float64
}

// ExponentialBackoff spaces recovery probes at base * 2^attempt,
// refusing probes past MaxRetries. The delay gate is its only ramp:
// once open, ProbeRate of traffic is admitted. The strategy itself is
// stateless; the caller's attempt counter drives the delay.
type ExponentialBackoff struct {
	config BackoffConfig

	now func() time.Time
}

// NewExponentialBackoff creates an ExponentialBackoff strategy.
func NewExponentialBackoff(config BackoffConfig) (*ExponentialBackoff, error) {
	if config.BaseDelay <= 0 {
		config.BaseDelay = 30 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Minute
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.ProbeRate == 0 {
		config.ProbeRate = 1
	}
	if config.ProbeRate < 0 || config.ProbeRate > 1 {
		return nil, fmt.Errorf("%w: probe rate %v", ErrInvalidRate, config.ProbeRate)
	}
	if config.Threshold == 0 {
		config.Threshold = 0.5
	}
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v", ErrInvalidThreshold, config.Threshold)
	}

	return &ExponentialBackoff{
		config: config,
		now:    time.Now,
	}, nil
}

// ShouldAttempt reports whether base * 2^attempt has elapsed since the
// last failure and the attempt count is within MaxRetries.
func (b *ExponentialBackoff) ShouldAttempt(_ context.Context, attempt int, lastFailure time.Time) bool {
	if attempt > b.config.MaxRetries {
		return false
	}
	if lastFailure.IsZero() {
		return true
	}
	return b.now().Sub(lastFailure) >= b.delay(attempt)
}

// AllowRate returns the configured probe fraction.
func (b *ExponentialBackoff) AllowRate() float64 {
	return b.config.ProbeRate
}

// OnSuccess reports full recovery once the consecutive success count
// reaches SuccessThreshold.
func (b *ExponentialBackoff) OnSuccess(consecutive int) bool {
	return consecutive >= b.config.SuccessThreshold
}

// OnFailure always reports a reset; the caller's attempt counter drives
// the next, longer delay.
func (b *ExponentialBackoff) OnFailure(int) bool {
	return true
}

// TripThreshold returns the ambient threshold.
func (b *ExponentialBackoff) TripThreshold() float64 {
	return b.config.Threshold
}

// Reset is a no-op; the strategy keeps no ramp state.
func (b *ExponentialBackoff) Reset() {}

func (b *ExponentialBackoff) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(b.config.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > b.config.MaxDelay || d <= 0 {
		return b.config.MaxDelay
	}
	return d
}
