// Package ratelimit bounds the request rate sent to one service.
//
// Four fixed algorithms are available behind one Limiter interface:
// token bucket, leaky bucket, fixed window, and sliding window. All are
// selected at construction and share the same non-blocking Allow
// admission call.
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//		Algorithm: ratelimit.TokenBucket,
//		Rate:      50,
//		Burst:     10,
//	})
//
// Adaptive wraps any of the four and retunes the rate from recorded
// call outcomes: a cooldown's worth of errors shrinks it, a clean
// cooldown grows it, clamped to configured bounds. Feed it outcomes
// with RecordSuccess and RecordFailure.
package ratelimit
