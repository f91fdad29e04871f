package ratelimit

import (
	"sync"
	"time"
)

// windowQuota converts a rate and window into an admission count, never
// below one so tiny rates still let traffic trickle.
func windowQuota(rps float64, window time.Duration) int {
	quota := int(rps * window.Seconds())
	if quota < 1 {
		quota = 1
	}
	return quota
}

// fixedWindow counts admissions per window and resets hard at each
// boundary.
type fixedWindow struct {
	mu     sync.Mutex
	rps    float64
	window time.Duration
	count  int
	start  time.Time

	now func() time.Time
}

func newFixedWindow(rps float64, window time.Duration) *fixedWindow {
	w := &fixedWindow{
		rps:    rps,
		window: window,
		now:    time.Now,
	}
	w.start = w.now()
	return w
}

func (w *fixedWindow) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Sub(w.start) >= w.window {
		w.start = now
		w.count = 0
	}

	if w.count >= windowQuota(w.rps, w.window) {
		return false
	}
	w.count++
	return true
}

func (w *fixedWindow) rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rps
}

func (w *fixedWindow) setRate(rps float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rps = rps
}

// slidingWindow keeps the admission timestamps of the trailing window,
// pruning as it goes, so bursts cannot hide behind a boundary reset.
type slidingWindow struct {
	mu     sync.Mutex
	rps    float64
	window time.Duration
	stamps []time.Time

	now func() time.Time
}

func newSlidingWindow(rps float64, window time.Duration) *slidingWindow {
	return &slidingWindow{
		rps:    rps,
		window: window,
		now:    time.Now,
	}
}

func (s *slidingWindow) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)

	keep := 0
	for keep < len(s.stamps) && !s.stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		s.stamps = append(s.stamps[:0], s.stamps[keep:]...)
	}

	if len(s.stamps) >= windowQuota(s.rps, s.window) {
		return false
	}
	s.stamps = append(s.stamps, now)
	return true
}

func (s *slidingWindow) rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rps
}

func (s *slidingWindow) setRate(rps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rps = rps
}
