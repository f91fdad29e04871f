package breaker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonwraymond/meshguard/metrics"
	"github.com/jonwraymond/meshguard/observe"
	"github.com/jonwraymond/meshguard/recovery"
)

// Config configures a Breaker.
type Config struct {
	// Service names the guarded dependency in metrics, logs, and the
	// replicated state key.
	Service string

	// FailureThreshold is the number of consecutive failures that
	// trips the circuit while closed. Default: 5
	FailureThreshold int

	// ResetTimeout seeds the default recovery strategy's first probe
	// delay. Ignored when Strategy is set. Default: 30 seconds
	ResetTimeout time.Duration

	// WindowSize is the number of trailing call outcomes kept for the
	// error rate. Default: 20
	WindowSize int

	// MinSamples is the window fill below which the error rate cannot
	// trip the circuit. Must not exceed WindowSize. Default: 10
	MinSamples int

	// Strategy decides probe timing, half-open admission, and
	// recovery completion. Default: recovery.NewExponentialBackoff
	// seeded with ResetTimeout, which stops granting probes once its
	// retry budget is spent; Reset clears it.
	Strategy recovery.Strategy

	// Store replicates state transitions across instances.
	// Default: no replication.
	Store StateStore

	// StoreTimeout bounds every Store operation. Default: 100ms
	StoreTimeout time.Duration

	// Collector receives per-call outcomes, trips, and recovery
	// attempts. Default: none.
	Collector *metrics.Collector

	// OnStateChange is called after every state transition.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Sink receives state gauges, rejection counts, and error rates.
	// Default: no emission.
	Sink observe.Sink

	// Logger receives replication failures. Default: discard.
	Logger observe.Logger
}

// Breaker is a per-service circuit breaker. It trips on consecutive
// failures or on a windowed error rate crossing the strategy's
// threshold, probes according to the strategy's schedule, and admits
// half-open traffic at the strategy's current rate.
type Breaker struct {
	config Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	attempt     int
	lastFailure time.Time
	window      []bool
	windowNext  int
	windowLen   int
	windowFails int

	now       func() time.Time
	randFloat func() float64
}

// New creates a circuit breaker.
func New(config Config) (*Breaker, error) {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 20
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 10
	}
	if config.MinSamples > config.WindowSize {
		return nil, fmt.Errorf("%w: min samples %d exceeds window %d",
			ErrInvalidWindow, config.MinSamples, config.WindowSize)
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 100 * time.Millisecond
	}
	if config.Strategy == nil {
		strategy, err := recovery.NewExponentialBackoff(recovery.BackoffConfig{
			BaseDelay: config.ResetTimeout,
		})
		if err != nil {
			return nil, err
		}
		config.Strategy = strategy
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	return &Breaker{
		config:    config,
		state:     StateClosed,
		window:    make([]bool, config.WindowSize),
		now:       time.Now,
		randFloat: rand.Float64,
	}, nil
}

// Allow reports whether one call may proceed. While open it consults
// the strategy's probe schedule and moves to half-open on the first
// granted probe; while half-open it admits the strategy's current
// traffic fraction. When a Store is configured, Allow begins with a
// bounded load so a circuit tripped by another instance fails fast
// here too.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.adoptRemote(ctx)

	b.mu.Lock()
	state := b.state
	attempt := b.attempt
	lastFailure := b.lastFailure
	b.mu.Unlock()

	switch state {
	case StateOpen:
		if !b.config.Strategy.ShouldAttempt(ctx, attempt, lastFailure) {
			b.rejected(ctx)
			return false
		}

		b.mu.Lock()
		from, to := b.state, b.state
		if b.state == StateOpen {
			b.attempt++
			from, to = b.transitionLocked(StateHalfOpen)
		}
		b.mu.Unlock()

		// The granted probe is admitted even if a concurrent caller
		// moved the state first.
		b.announce(from, to, false)
		return true

	case StateHalfOpen:
		if b.randFloat() < b.config.Strategy.AllowRate() {
			return true
		}
		b.rejected(ctx)
		return false

	default:
		return true
	}
}

// RecordSuccess records one successful call. In half-open state the
// circuit closes once the strategy reports full recovery.
func (b *Breaker) RecordSuccess(ctx context.Context, latency time.Duration) {
	b.mu.Lock()
	b.observeLocked(false)
	b.failures = 0
	b.successes++

	recovered := b.config.Strategy.OnSuccess(b.successes)

	from, to := b.state, b.state
	if b.state == StateHalfOpen && recovered {
		from, to = b.transitionLocked(StateClosed)
	}
	rate, rateOK := b.errorRateLocked()
	b.mu.Unlock()

	b.announce(from, to, false)
	b.outcome(ctx, latency, false, rate, rateOK)
}

// RecordFailure records one failed call. A failure during a half-open
// probe reopens the circuit immediately; while closed, crossing the
// consecutive-failure threshold or the strategy's error-rate threshold
// trips it.
func (b *Breaker) RecordFailure(ctx context.Context, latency time.Duration) {
	b.mu.Lock()
	b.observeLocked(true)
	b.lastFailure = b.now()
	b.successes = 0
	b.failures++

	// The threshold is read before OnFailure so a failure that ends a
	// recovery is still judged against the tightened value.
	threshold := b.config.Strategy.TripThreshold()
	b.config.Strategy.OnFailure(b.failures)

	from, to := b.state, b.state
	switch b.state {
	case StateClosed:
		rate, ok := b.errorRateLocked()
		if b.failures >= b.config.FailureThreshold ||
			(ok && rate >= threshold) {
			from, to = b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		from, to = b.transitionLocked(StateOpen)
	}
	rate, rateOK := b.errorRateLocked()
	b.mu.Unlock()

	b.announce(from, to, false)
	b.outcome(ctx, latency, true, rate, rateOK)
}

// Execute runs the operation through the circuit breaker, recording
// its outcome and latency.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrCircuitOpen
	}

	start := b.now()
	err := op(ctx)
	latency := b.now().Sub(start)

	if b.config.IsFailure(err) {
		b.RecordFailure(ctx, latency)
	} else {
		b.RecordSuccess(ctx, latency)
	}
	return err
}

// State returns the last decided state. An open circuit does not lapse
// to half-open on its own; the transition happens when Allow grants a
// probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the circuit to closed and resets the strategy.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from, to := b.transitionLocked(StateClosed)
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	b.config.Strategy.Reset()
	b.announce(from, to, false)
}

// Metrics contains circuit breaker statistics.
type Metrics struct {
	State       State
	Failures    int
	Successes   int
	Attempts    int
	ErrorRate   float64
	LastFailure time.Time
}

// Metrics returns current circuit breaker statistics.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	rate, _ := b.errorRateLocked()
	return Metrics{
		State:       b.state,
		Failures:    b.failures,
		Successes:   b.successes,
		Attempts:    b.attempt,
		ErrorRate:   rate,
		LastFailure: b.lastFailure,
	}
}

// adoptRemote adopts an OPEN tripped by another instance. Load errors
// fall back to local state; the probe clock restarts at adoption time.
func (b *Breaker) adoptRemote(ctx context.Context) {
	if b.config.Store == nil {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, b.config.StoreTimeout)
	remote, err := b.config.Store.Load(rctx, b.config.Service)
	cancel()
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			b.config.Logger.Warn(ctx, "circuit state load failed",
				observe.Field{Key: "service", Value: b.config.Service},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
		return
	}
	if remote != StateOpen {
		return
	}

	b.mu.Lock()
	from, to := b.state, b.state
	if b.state == StateClosed {
		b.lastFailure = b.now()
		from, to = b.transitionLocked(StateOpen)
	}
	b.mu.Unlock()

	b.announce(from, to, true)
}

// transitionLocked moves the state machine and resets the counters the
// new state invalidates. Returns the old and new states.
func (b *Breaker) transitionLocked(to State) (State, State) {
	from := b.state
	if from == to {
		return from, to
	}

	b.state = to
	switch to {
	case StateHalfOpen:
		b.successes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.attempt = 0
		b.windowNext = 0
		b.windowLen = 0
		b.windowFails = 0
	}
	return from, to
}

// announce performs the side effects of a state transition: callback,
// state gauge, trip/recovery accounting, and write-through replication.
// Adopted transitions came from the store and are not written back or
// counted as local trips.
func (b *Breaker) announce(from, to State, adopted bool) {
	if from == to {
		return
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}

	ctx := context.Background()
	b.config.Sink.Gauge(ctx, "mesh.breaker.state", float64(to), b.serviceTag())

	if adopted {
		return
	}

	if b.config.Collector != nil {
		switch {
		case to == StateOpen && from == StateClosed:
			b.config.Collector.RecordTrip(ctx)
		case to == StateOpen && from == StateHalfOpen:
			b.config.Collector.RecordRecovery(ctx, true)
		case to == StateClosed && from == StateHalfOpen:
			b.config.Collector.RecordRecovery(ctx, false)
		}
	}

	if b.config.Store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, b.config.StoreTimeout)
	defer cancel()
	if err := b.config.Store.Store(sctx, b.config.Service, to); err != nil {
		b.config.Logger.Warn(ctx, "circuit state replication failed",
			observe.Field{Key: "service", Value: b.config.Service},
			observe.Field{Key: "state", Value: to.String()},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

// outcome forwards one call outcome to the collector and the sink.
func (b *Breaker) outcome(ctx context.Context, latency time.Duration, failed bool, rate float64, rateOK bool) {
	if b.config.Collector != nil {
		b.config.Collector.RecordRequest(ctx, latency, failed)
	}
	if rateOK {
		b.config.Sink.Gauge(ctx, "mesh.breaker.error_rate", rate, b.serviceTag())
	}
}

func (b *Breaker) rejected(ctx context.Context) {
	b.config.Sink.Increment(ctx, "mesh.breaker.rejected", b.serviceTag())
}

// observeLocked appends one outcome to the error-rate ring.
func (b *Breaker) observeLocked(failed bool) {
	if b.windowLen < len(b.window) {
		b.windowLen++
	} else if b.window[b.windowNext] {
		b.windowFails--
	}
	b.window[b.windowNext] = failed
	if failed {
		b.windowFails++
	}
	b.windowNext = (b.windowNext + 1) % len(b.window)
}

// errorRateLocked returns the windowed error rate, and whether enough
// samples exist for it to mean anything.
func (b *Breaker) errorRateLocked() (float64, bool) {
	if b.windowLen < b.config.MinSamples {
		return 0, false
	}
	return float64(b.windowFails) / float64(b.windowLen), true
}

func (b *Breaker) serviceTag() observe.Tag {
	return observe.Tag{Key: "service", Value: b.config.Service}
}
