package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AdaptiveConfig configures an Adaptive strategy.
type AdaptiveConfig struct {
	// Gauges supplies the health gauges consulted before each probe.
	// Required.
	Gauges GaugeSource

	// Bounds maps gauge names to their healthy upper bounds. A sampled
	// gauge at or above its bound vetoes the probe. Gauges without a
	// bound are ignored.
	Bounds map[string]float64

	// BaseRate is the admitted fraction when a recovery begins.
	// Default: 0.1
	BaseRate float64

	// Step is added to the rate on success. Default: 0.1
	Step float64

	// Penalty is subtracted from the rate on failure. Default: 0.2
	Penalty float64

	// BaseDelay must elapse after the last failure before a probe may
	// start. Default: 30s
	BaseDelay time.Duration

	// Threshold is the error-rate threshold for opening the circuit.
	// Default: 0.5
	Threshold float64
}

// Adaptive ramps traffic up and down with call outcomes, and refuses to
// probe at all while any health gauge sits above its bound. A gauge
// read failure also refuses the probe.
type Adaptive struct {
	config AdaptiveConfig

	mu   sync.Mutex
	rate float64

	now func() time.Time
}

// NewAdaptive creates an Adaptive strategy.
func NewAdaptive(config AdaptiveConfig) (*Adaptive, error) {
	if config.Gauges == nil {
		return nil, ErrNoGaugeSource
	}
	if config.BaseRate == 0 {
		config.BaseRate = 0.1
	}
	if config.BaseRate < 0 || config.BaseRate > 1 {
		return nil, fmt.Errorf("%w: base rate %v", ErrInvalidRate, config.BaseRate)
	}
	if config.Step == 0 {
		config.Step = 0.1
	}
	if config.Step < 0 {
		return nil, fmt.Errorf("%w: step %v", ErrInvalidRate, config.Step)
	}
	if config.Penalty == 0 {
		config.Penalty = 0.2
	}
	if config.Penalty < 0 {
		return nil, fmt.Errorf("%w: penalty %v", ErrInvalidRate, config.Penalty)
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 30 * time.Second
	}
	if config.Threshold == 0 {
		config.Threshold = 0.5
	}
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v", ErrInvalidThreshold, config.Threshold)
	}

	return &Adaptive{
		config: config,
		rate:   config.BaseRate,
		now:    time.Now,
	}, nil
}

// ShouldAttempt reports whether BaseDelay has elapsed and every bounded
// gauge reads below its bound. A gauge read failure, or a bounded gauge
// missing from the sample, refuses the probe.
func (a *Adaptive) ShouldAttempt(ctx context.Context, _ int, lastFailure time.Time) bool {
	if !lastFailure.IsZero() && a.now().Sub(lastFailure) < a.config.BaseDelay {
		return false
	}

	samples, err := a.config.Gauges.Sample(ctx)
	if err != nil {
		return false
	}
	for name, bound := range a.config.Bounds {
		v, ok := samples[name]
		if !ok || v >= bound {
			return false
		}
	}
	return true
}

// AllowRate returns the current ramp fraction.
func (a *Adaptive) AllowRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate
}

// OnSuccess bumps the rate by Step and reports full recovery once it
// reaches 1.0.
func (a *Adaptive) OnSuccess(int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rate += a.config.Step
	if a.rate > 1 {
		a.rate = 1
	}
	return a.rate >= 1
}

// OnFailure drops the rate by Penalty, keeping partial progress rather
// than resetting. It reports a reset only once the rate bottoms out at
// zero.
func (a *Adaptive) OnFailure(int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rate -= a.config.Penalty
	if a.rate < 0 {
		a.rate = 0
	}
	return a.rate == 0
}

// TripThreshold returns the ambient threshold.
func (a *Adaptive) TripThreshold() float64 {
	return a.config.Threshold
}

// Reset returns the ramp to its base rate.
func (a *Adaptive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rate = a.config.BaseRate
}
