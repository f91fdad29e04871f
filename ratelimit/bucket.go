package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// tokenBucket delegates to x/time/rate, which is itself safe for
// concurrent use including retuning.
type tokenBucket struct {
	limiter *rate.Limiter
}

func newTokenBucket(rps float64, burst int) *tokenBucket {
	return &tokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *tokenBucket) allow() bool {
	return t.limiter.Allow()
}

func (t *tokenBucket) rate() float64 {
	return float64(t.limiter.Limit())
}

func (t *tokenBucket) setRate(rps float64) {
	t.limiter.SetLimit(rate.Limit(rps))
}

// leakyBucket meters admissions against a queue that drains at the
// configured rate. A full queue rejects.
type leakyBucket struct {
	mu       sync.Mutex
	rps      float64
	capacity float64
	level    float64
	last     time.Time

	now func() time.Time
}

func newLeakyBucket(rps float64, capacity int) *leakyBucket {
	b := &leakyBucket{
		rps:      rps,
		capacity: float64(capacity),
		now:      time.Now,
	}
	b.last = b.now()
	return b
}

func (b *leakyBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.level -= now.Sub(b.last).Seconds() * b.rps
	if b.level < 0 {
		b.level = 0
	}
	b.last = now

	if b.level+1 > b.capacity {
		return false
	}
	b.level++
	return true
}

func (b *leakyBucket) rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rps
}

func (b *leakyBucket) setRate(rps float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rps = rps
}
