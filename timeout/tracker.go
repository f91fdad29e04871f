package timeout

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stats summarizes the tracked window. With zero samples, SuccessRate
// is 1.0 and every other field is 0.
type Stats struct {
	Samples     int
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	SuccessRate float64
}

type sample struct {
	latencyMS float64
	success   bool
}

// Tracker keeps a bounded window of recent call latencies and outcomes.
// Once the window fills, the oldest sample is evicted first.
type Tracker struct {
	window int

	mu      sync.Mutex
	samples []sample
	next    int
}

// NewTracker creates a tracker holding up to windowSize samples.
// Default window: 100.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Tracker{
		window:  windowSize,
		samples: make([]sample, 0, windowSize),
	}
}

// Record appends one call outcome, evicting the oldest beyond the window.
func (t *Tracker) Record(latency time.Duration, success bool) {
	s := sample{
		latencyMS: float64(latency) / float64(time.Millisecond),
		success:   success,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < t.window {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.next] = s
	t.next = (t.next + 1) % t.window
}

// Len returns the number of retained samples.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Latencies returns a copy of the retained latencies in milliseconds,
// in no particular order.
func (t *Tracker) Latencies() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]float64, len(t.samples))
	for i, s := range t.samples {
		out[i] = s.latencyMS
	}
	return out
}

// Stats computes summary statistics over the retained window.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.samples)
	if n == 0 {
		return Stats{SuccessRate: 1}
	}

	stats := Stats{
		Samples: n,
		Min:     math.MaxFloat64,
	}
	var successes int
	for _, s := range t.samples {
		stats.Mean += s.latencyMS
		if s.latencyMS < stats.Min {
			stats.Min = s.latencyMS
		}
		if s.latencyMS > stats.Max {
			stats.Max = s.latencyMS
		}
		if s.success {
			successes++
		}
	}
	stats.Mean /= float64(n)
	stats.SuccessRate = float64(successes) / float64(n)

	if n > 1 {
		var m2 float64
		for _, s := range t.samples {
			d := s.latencyMS - stats.Mean
			m2 += d * d
		}
		stats.StdDev = math.Sqrt(m2 / float64(n-1))
	}
	return stats
}

// Reset drops every retained sample.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = t.samples[:0]
	t.next = 0
}

// latencyPercentile returns the pth percentile (0 < p <= 100) with
// linear interpolation between closest ranks. Returns 0 for an empty set.
func latencyPercentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
