package metrics

import (
	"github.com/jonwraymond/meshguard/health"
)

// Health is a point-in-time assessment of the tracked service.
type Health struct {
	// Score is in [0, 1]; higher is healthier.
	Score float64

	// Status is the categorical reading of Score.
	Status health.Status

	// ErrorRate is the live-window error rate the score was derived from.
	ErrorRate float64
}

// HealthStatus derives a composite health score from the live window.
//
// The score weighs error rate at 60% and latency deviation from the
// trailing baseline at 40%. A score above 0.8 reads healthy, above 0.5
// degraded, anything else unhealthy. An idle window scores 1.0.
func (c *Collector) HealthStatus() Health {
	c.mu.Lock()

	now := c.now()
	live := c.liveBucketsLocked(now)

	var requests, errors int
	var latMeans []float64
	for _, b := range live {
		requests += b.requests
		errors += b.errors
		if b.latStats.count > 0 {
			latMeans = append(latMeans, b.latStats.mean)
		}
	}
	c.mu.Unlock()

	var errorRate float64
	if requests > 0 {
		errorRate = float64(errors) / float64(requests)
	}

	// Half the traffic erroring zeroes the error component.
	errScore := 1 - clamp01(errorRate*2)

	// Latency component compares the newest bucket against the trailing
	// baseline; four times the baseline zeroes it.
	latScore := 1.0
	if len(latMeans) > 1 {
		baseline := trailingBaseline(latMeans)
		current := latMeans[len(latMeans)-1]
		if baseline > 0 && current > baseline {
			latScore = 1 - clamp01((current-baseline)/(3*baseline))
		}
	}

	score := 0.6*errScore + 0.4*latScore

	status := health.StatusUnhealthy
	switch {
	case score > 0.8:
		status = health.StatusHealthy
	case score > 0.5:
		status = health.StatusDegraded
	}

	return Health{Score: score, Status: status, ErrorRate: errorRate}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
