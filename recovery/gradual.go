package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GradualConfig configures a Gradual strategy.
type GradualConfig struct {
	// BaseRate is the admitted fraction when a recovery begins.
	// Default: 0.1
	BaseRate float64

	// Step is added to the rate after each good evaluation window.
	// Default: 0.1
	Step float64

	// WindowSuccesses is the number of consecutive successes that
	// complete one evaluation window. Default: 5
	WindowSuccesses int

	// BaseDelay must elapse after the last failure before a probe may
	// start. Default: 0 (probe as soon as the circuit permits)
	BaseDelay time.Duration

	// Threshold is the ambient error-rate threshold for opening the
	// circuit. Default: 0.5
	Threshold float64

	// RecoveryThreshold replaces Threshold while a recovery is in
	// progress, so a single bad window aborts the ramp early. Must not
	// exceed Threshold. Default: 0.3
	RecoveryThreshold float64
}

// Gradual ramps admitted traffic from a base fraction back to full in
// fixed steps, one per window of consecutive successes. Any failure
// returns the ramp to its base.
type Gradual struct {
	config GradualConfig

	mu            sync.Mutex
	rate          float64
	recoveryStart time.Time

	now func() time.Time
}

// NewGradual creates a Gradual strategy.
func NewGradual(config GradualConfig) (*Gradual, error) {
	if config.BaseRate == 0 {
		config.BaseRate = 0.1
	}
	if config.BaseRate < 0 || config.BaseRate > 1 {
		return nil, fmt.Errorf("%w: base rate %v", ErrInvalidRate, config.BaseRate)
	}
	if config.Step == 0 {
		config.Step = 0.1
	}
	if config.Step < 0 || config.Step > 1 {
		return nil, fmt.Errorf("%w: step %v", ErrInvalidRate, config.Step)
	}
	if config.WindowSuccesses <= 0 {
		config.WindowSuccesses = 5
	}
	if config.Threshold == 0 {
		config.Threshold = 0.5
	}
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v", ErrInvalidThreshold, config.Threshold)
	}
	if config.RecoveryThreshold == 0 {
		config.RecoveryThreshold = 0.3
	}
	if config.RecoveryThreshold < 0 || config.RecoveryThreshold > config.Threshold {
		return nil, fmt.Errorf("%w: recovery threshold %v", ErrInvalidThreshold, config.RecoveryThreshold)
	}

	return &Gradual{
		config: config,
		rate:   config.BaseRate,
		now:    time.Now,
	}, nil
}

// ShouldAttempt reports whether BaseDelay has elapsed since the last
// failure. A granted attempt marks the recovery as in progress.
func (g *Gradual) ShouldAttempt(_ context.Context, _ int, lastFailure time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !lastFailure.IsZero() && g.now().Sub(lastFailure) < g.config.BaseDelay {
		return false
	}
	if g.recoveryStart.IsZero() {
		g.recoveryStart = g.now()
	}
	return true
}

// AllowRate returns the current ramp fraction.
func (g *Gradual) AllowRate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate
}

// OnSuccess bumps the rate by Step once per completed window of
// consecutive successes. It reports full recovery once the rate
// reaches 1.0.
func (g *Gradual) OnSuccess(consecutive int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if consecutive > 0 && consecutive%g.config.WindowSuccesses == 0 {
		g.rate += g.config.Step
		if g.rate > 1 {
			g.rate = 1
		}
	}
	if g.rate >= 1 {
		// Fully recovered: the tightened trip threshold no longer
		// applies.
		g.recoveryStart = time.Time{}
		return true
	}
	return false
}

// OnFailure returns the ramp to its base rate and clears the recovery
// start time. It always reports a reset.
func (g *Gradual) OnFailure(int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
	return true
}

// TripThreshold returns the tightened threshold while a recovery is in
// progress and the ambient threshold otherwise.
func (g *Gradual) TripThreshold() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.recoveryStart.IsZero() {
		return g.config.RecoveryThreshold
	}
	return g.config.Threshold
}

// Reset returns the ramp to its base rate.
func (g *Gradual) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

func (g *Gradual) resetLocked() {
	g.rate = g.config.BaseRate
	g.recoveryStart = time.Time{}
}
