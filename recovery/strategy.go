package recovery

import (
	"context"
	"time"
)

// Strategy decides when a tripped service may be probed and how fast
// traffic ramps back up. Strategies are pure decision objects: they
// carry their own ramp state but never touch the network, emit metrics,
// or block.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - AllowRate returns a fraction in [0, 1].
// - ShouldAttempt must not block; gauge reads happen in-memory.
type Strategy interface {
	// ShouldAttempt reports whether a recovery probe may start, given
	// the number of attempts so far and the time of the last failure.
	ShouldAttempt(ctx context.Context, attempt int, lastFailure time.Time) bool

	// AllowRate returns the fraction of traffic admitted while probing.
	AllowRate() float64

	// OnSuccess records a successful probe, given the consecutive
	// success count, and reports whether the service has fully
	// recovered.
	OnSuccess(consecutive int) bool

	// OnFailure records a failed probe, given the consecutive failure
	// count, and reports whether ramp progress was reset to its base.
	OnFailure(consecutive int) bool

	// TripThreshold returns the error-rate threshold at which the
	// circuit should open, tightened by some strategies while a
	// recovery is in progress.
	TripThreshold() float64

	// Reset clears all ramp progress.
	Reset()
}

// GaugeSource supplies named gauges, such as memory usage or goroutine
// counts, consulted before permitting a recovery probe.
//
// health.MemoryChecker satisfies this interface.
type GaugeSource interface {
	Sample(ctx context.Context) (map[string]float64, error)
}
