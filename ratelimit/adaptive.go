package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/meshguard/observe"
)

// AdaptiveConfig configures an Adaptive limiter.
type AdaptiveConfig struct {
	// Service tags emitted metrics.
	Service string

	// Algorithm is the wrapped admission algorithm. Default: TokenBucket
	Algorithm Algorithm

	// Rate is the starting requests per second. Default: 100
	Rate float64

	// Burst is the capacity of the bucket algorithms. Default: 10
	Burst int

	// Window is the evaluation window of the window algorithms.
	// Default: 1s
	Window time.Duration

	// MinRate and MaxRate clamp every adjustment.
	// Defaults: Rate/10 and Rate*10
	MinRate float64
	MaxRate float64

	// ScaleFactor multiplies the rate after a clean cooldown and
	// divides it after an errorful one. Must exceed 1. Default: 1.2
	ScaleFactor float64

	// ErrorThreshold is the error rate above which the rate shrinks.
	// Default: 0.1
	ErrorThreshold float64

	// Cooldown is the minimum time between adjustments. Default: 30s
	Cooldown time.Duration

	// Sink receives rate gauges and rejection counts.
	// Default: no emission.
	Sink observe.Sink
}

// Adaptive wraps an admission algorithm and retunes its rate from call
// outcomes: sustained errors shrink it, sustained success grows it,
// never leaving [MinRate, MaxRate]. At most one adjustment happens per
// Cooldown, and the outcome counters reset on every adjustment pass
// whether or not the rate moved.
type Adaptive struct {
	config AdaptiveConfig
	algo   algorithm

	mu         sync.Mutex
	current    float64
	successes  int64
	failures   int64
	lastAdjust time.Time

	now func() time.Time
}

// NewAdaptive creates an Adaptive limiter.
func NewAdaptive(config AdaptiveConfig) (*Adaptive, error) {
	base := Config{
		Algorithm: config.Algorithm,
		Rate:      config.Rate,
		Burst:     config.Burst,
		Window:    config.Window,
	}
	if err := base.applyDefaults(); err != nil {
		return nil, err
	}
	algo, err := newAlgorithm(base)
	if err != nil {
		return nil, err
	}
	config.Rate = base.Rate

	if config.MinRate == 0 {
		config.MinRate = config.Rate / 10
	}
	if config.MaxRate == 0 {
		config.MaxRate = config.Rate * 10
	}
	if config.MinRate <= 0 || config.MinRate > config.MaxRate ||
		config.Rate < config.MinRate || config.Rate > config.MaxRate {
		return nil, fmt.Errorf("%w: [%v, %v] around %v",
			ErrInvalidBounds, config.MinRate, config.MaxRate, config.Rate)
	}
	if config.ScaleFactor == 0 {
		config.ScaleFactor = 1.2
	}
	if config.ScaleFactor <= 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScaleFactor, config.ScaleFactor)
	}
	if config.ErrorThreshold == 0 {
		config.ErrorThreshold = 0.1
	}
	if config.ErrorThreshold < 0 || config.ErrorThreshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, config.ErrorThreshold)
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}

	a := &Adaptive{
		config:  config,
		algo:    algo,
		current: config.Rate,
		now:     time.Now,
	}
	a.lastAdjust = a.now()
	return a, nil
}

// Allow reports whether one request may proceed, applying any due rate
// adjustment first.
func (a *Adaptive) Allow() bool {
	a.mu.Lock()
	adjusted, newRate := a.maybeAdjustLocked()
	a.mu.Unlock()

	if adjusted {
		a.config.Sink.Gauge(context.Background(), "mesh.ratelimit.rate", newRate,
			observe.Tag{Key: "service", Value: a.config.Service})
	}

	if a.algo.allow() {
		return true
	}
	a.config.Sink.Increment(context.Background(), "mesh.ratelimit.rejected",
		observe.Tag{Key: "service", Value: a.config.Service})
	return false
}

// RecordSuccess counts one successful call toward the next adjustment.
func (a *Adaptive) RecordSuccess() {
	a.mu.Lock()
	a.successes++
	a.mu.Unlock()
}

// RecordFailure counts one failed call toward the next adjustment.
func (a *Adaptive) RecordFailure() {
	a.mu.Lock()
	a.failures++
	a.mu.Unlock()
}

// Rate returns the currently tuned requests-per-second rate.
func (a *Adaptive) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// maybeAdjustLocked retunes the wrapped algorithm once per cooldown
// from the accumulated outcome counts. It reports whether the rate
// changed and the rate now in force.
func (a *Adaptive) maybeAdjustLocked() (bool, float64) {
	now := a.now()
	if now.Sub(a.lastAdjust) < a.config.Cooldown {
		return false, a.current
	}
	total := a.successes + a.failures
	if total == 0 {
		return false, a.current
	}

	errRate := float64(a.failures) / float64(total)
	next := a.current * a.config.ScaleFactor
	if errRate > a.config.ErrorThreshold {
		next = a.current / a.config.ScaleFactor
	}
	if next < a.config.MinRate {
		next = a.config.MinRate
	}
	if next > a.config.MaxRate {
		next = a.config.MaxRate
	}

	// Counters reset on every pass, not only on a rate change.
	a.successes, a.failures = 0, 0
	a.lastAdjust = now

	if next == a.current {
		return false, a.current
	}
	a.current = next
	a.algo.setRate(next)
	return true, next
}

var _ Limiter = (*Adaptive)(nil)
