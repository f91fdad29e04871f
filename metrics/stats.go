package metrics

import (
	"math"
	"sort"
)

// percentile returns the pth percentile (0 < p <= 100) of samples using
// linear interpolation between closest ranks. Returns 0 for an empty set.
func percentile(samples []float64, p float64) float64 {
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

// mean returns the arithmetic mean of samples, 0 when empty.
func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// slope returns the least-squares slope of ys over x = 0..len(ys)-1.
// Positive means the series is rising. Zero for fewer than two points.
func slope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}

	xbar := float64(n-1) / 2
	ybar := mean(ys)

	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xbar
		num += dx * (y - ybar)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// tail returns the last n elements of s, or s itself when shorter.
func tail(s []float64, n int) []float64 {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// runningStats tracks count, mean, and variance incrementally (Welford).
type runningStats struct {
	count int
	mean  float64
	m2    float64
}

func (s *runningStats) push(v float64) {
	s.count++
	delta := v - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (v - s.mean)
}

// std returns the sample standard deviation, 0 below two samples.
func (s *runningStats) std() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count-1))
}
