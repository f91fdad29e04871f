package timeout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/meshguard/observe"
)

// Strategy selects how the next timeout is derived.
type Strategy int

const (
	// StrategyHybrid takes the larger of the percentile and adaptive
	// values. This is the default.
	StrategyHybrid Strategy = iota
	// StrategyPercentile uses a latency percentile of the recent window
	// scaled by the adjustment factor.
	StrategyPercentile
	// StrategyAdaptive widens the mean latency as the success rate drops.
	StrategyAdaptive
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyHybrid:
		return "hybrid"
	case StrategyPercentile:
		return "percentile"
	case StrategyAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name as produced by String.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "percentile":
		return StrategyPercentile, nil
	case "adaptive":
		return StrategyAdaptive, nil
	case "hybrid":
		return StrategyHybrid, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Config configures an Adaptive timeout.
type Config struct {
	// Service tags emitted metrics.
	Service string

	// MinTimeout and MaxTimeout clamp every computed timeout.
	// Defaults: 100ms and 30s
	MinTimeout time.Duration
	MaxTimeout time.Duration

	// InitialTimeout is used until the first sample arrives.
	// Default: 1 second
	InitialTimeout time.Duration

	// Strategy selects the computation. Default: StrategyHybrid
	Strategy Strategy

	// WindowSize caps the retained latency samples. Default: 100
	WindowSize int

	// Percentile drives the percentile strategies, in (0, 100].
	// Default: 95
	Percentile float64

	// AdjustmentFactor scales the computed value to leave headroom
	// above observed latency. Default: 1.5
	AdjustmentFactor float64

	// Sink receives per-sample emission. Default: no emission.
	Sink observe.Sink
}

// Adaptive derives the timeout for the next call against one service
// from its recent latency window. Safe for concurrent use.
type Adaptive struct {
	config  Config
	tracker *Tracker
}

// New creates an Adaptive timeout. Invalid ranges fail fast; zero values
// take defaults.
func New(config Config) (*Adaptive, error) {
	if config.MinTimeout <= 0 {
		config.MinTimeout = 100 * time.Millisecond
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = 30 * time.Second
	}
	if config.MinTimeout > config.MaxTimeout {
		return nil, ErrInvalidBounds
	}
	if config.InitialTimeout <= 0 {
		config.InitialTimeout = time.Second
	}
	switch config.Strategy {
	case StrategyHybrid, StrategyPercentile, StrategyAdaptive:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, config.Strategy)
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 100
	}
	if config.Percentile == 0 {
		config.Percentile = 95
	}
	if config.Percentile < 0 || config.Percentile > 100 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPercentile, config.Percentile)
	}
	if config.AdjustmentFactor < 0 {
		return nil, ErrInvalidFactor
	}
	if config.AdjustmentFactor == 0 {
		config.AdjustmentFactor = 1.5
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}

	return &Adaptive{
		config:  config,
		tracker: NewTracker(config.WindowSize),
	}, nil
}

// Record feeds one call outcome into the window.
func (a *Adaptive) Record(ctx context.Context, latency time.Duration, success bool) {
	a.tracker.Record(latency, success)

	a.config.Sink.Observe(ctx, "mesh.timeout.sample_ms",
		float64(latency)/float64(time.Millisecond),
		observe.Tag{Key: "service", Value: a.config.Service},
		observe.Tag{Key: "success", Value: fmt.Sprintf("%t", success)})
}

// Timeout computes the timeout for the next call, clamped to
// [MinTimeout, MaxTimeout]. With an empty window it returns the clamped
// initial timeout.
func (a *Adaptive) Timeout() time.Duration {
	lats := a.tracker.Latencies()
	if len(lats) == 0 {
		return a.clamp(a.config.InitialTimeout)
	}
	stats := a.tracker.Stats()

	var ms float64
	switch a.config.Strategy {
	case StrategyPercentile:
		ms = a.percentileMS(lats)
	case StrategyAdaptive:
		ms = a.adaptiveMS(stats)
	default:
		// Hybrid takes the wider of the two so a failing window can
		// never shrink the budget below the percentile floor.
		ms = a.percentileMS(lats)
		if ad := a.adaptiveMS(stats); ad > ms {
			ms = ad
		}
	}
	return a.clamp(time.Duration(ms * float64(time.Millisecond)))
}

// Stats exposes the tracked window for observability.
func (a *Adaptive) Stats() Stats {
	return a.tracker.Stats()
}

// Reset drops the latency window, returning to the initial timeout.
func (a *Adaptive) Reset() {
	a.tracker.Reset()
}

// Execute runs op under the currently computed timeout, recording its
// latency and outcome. A deadline hit records a failed sample at the
// full budget and returns ErrTimeout. Caller cancellation is passed
// through unrecorded.
func (a *Adaptive) Execute(ctx context.Context, op func(context.Context) error) error {
	budget := a.Timeout()
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)

	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		a.Record(ctx, time.Since(start), err == nil)
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			a.Record(context.Background(), budget, false)
			return ErrTimeout
		}
		return ctx.Err()
	}
}

func (a *Adaptive) percentileMS(lats []float64) float64 {
	return latencyPercentile(lats, a.config.Percentile) * a.config.AdjustmentFactor
}

// adaptiveMS widens the mean latency toward 2x as the success rate falls.
func (a *Adaptive) adaptiveMS(stats Stats) float64 {
	return stats.Mean * a.config.AdjustmentFactor * (2 - stats.SuccessRate)
}

func (a *Adaptive) clamp(d time.Duration) time.Duration {
	if d < a.config.MinTimeout {
		return a.config.MinTimeout
	}
	if d > a.config.MaxTimeout {
		return a.config.MaxTimeout
	}
	return d
}
