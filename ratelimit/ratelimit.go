package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Algorithm selects the admission algorithm.
type Algorithm int

const (
	// TokenBucket refills tokens at the configured rate up to Burst.
	TokenBucket Algorithm = iota
	// LeakyBucket drains a bounded queue at the configured rate.
	LeakyBucket
	// FixedWindow admits up to rate * window requests, resetting hard
	// at each window boundary.
	FixedWindow
	// SlidingWindow admits up to rate * window requests over a
	// continuously pruned trailing window.
	SlidingWindow
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case TokenBucket:
		return "token_bucket"
	case LeakyBucket:
		return "leaky_bucket"
	case FixedWindow:
		return "fixed_window"
	case SlidingWindow:
		return "sliding_window"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses an algorithm name as produced by String.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "token_bucket":
		return TokenBucket, nil
	case "leaky_bucket":
		return LeakyBucket, nil
	case "fixed_window":
		return FixedWindow, nil
	case "sliding_window":
		return SlidingWindow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Limiter is the admission interface callers compose. RecordSuccess and
// RecordFailure inform adaptive implementations; fixed algorithms
// ignore them.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Allow must not block.
type Limiter interface {
	// Allow reports whether one request may proceed now.
	Allow() bool

	// RecordSuccess feeds a successful call outcome back.
	RecordSuccess()

	// RecordFailure feeds a failed call outcome back.
	RecordFailure()

	// Rate returns the current requests-per-second rate.
	Rate() float64
}

// algorithm is the retunable admission core behind every Limiter.
type algorithm interface {
	allow() bool
	rate() float64
	setRate(rps float64)
}

// Config configures a fixed-rate limiter.
type Config struct {
	// Algorithm selects the admission algorithm. Default: TokenBucket
	Algorithm Algorithm

	// Rate is the admitted requests per second. Default: 100
	Rate float64

	// Burst is the capacity of the bucket algorithms. Default: 10
	Burst int

	// Window is the evaluation window of the window algorithms.
	// Default: 1s
	Window time.Duration
}

func (c *Config) applyDefaults() error {
	if c.Rate == 0 {
		c.Rate = 100
	}
	if c.Rate < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, c.Rate)
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	switch c.Algorithm {
	case TokenBucket, LeakyBucket, FixedWindow, SlidingWindow:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAlgorithm, c.Algorithm)
	}
}

// New creates a fixed-rate Limiter running the configured algorithm.
func New(config Config) (Limiter, error) {
	algo, err := newAlgorithm(config)
	if err != nil {
		return nil, err
	}
	return fixedLimiter{algo}, nil
}

func newAlgorithm(config Config) (algorithm, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	switch config.Algorithm {
	case LeakyBucket:
		return newLeakyBucket(config.Rate, config.Burst), nil
	case FixedWindow:
		return newFixedWindow(config.Rate, config.Window), nil
	case SlidingWindow:
		return newSlidingWindow(config.Rate, config.Window), nil
	default:
		return newTokenBucket(config.Rate, config.Burst), nil
	}
}

// fixedLimiter exposes a bare algorithm as a Limiter. Outcomes carry no
// information at a fixed rate, so the Record methods do nothing.
type fixedLimiter struct {
	algo algorithm
}

func (f fixedLimiter) Allow() bool    { return f.algo.allow() }
func (f fixedLimiter) RecordSuccess() {}
func (f fixedLimiter) RecordFailure() {}
func (f fixedLimiter) Rate() float64  { return f.algo.rate() }
