package metrics

import (
	"sort"
	"time"
)

// tripIntervalTolerance is the relative deviation allowed between
// inter-trip intervals grouped into one pattern.
const tripIntervalTolerance = 0.2

// Snapshot is an aggregate view over the live window.
type Snapshot struct {
	// WindowStart and WindowEnd bound the aggregated interval.
	WindowStart time.Time
	WindowEnd   time.Time

	// Buckets is how many live buckets contributed.
	Buckets int

	TotalRequests int
	TotalErrors   int

	// ErrorRate is TotalErrors/TotalRequests, 0 when idle.
	ErrorRate float64

	// MeanLatency is the mean over pooled samples, in milliseconds.
	MeanLatency float64

	// Percentiles holds one interpolated latency value per configured
	// percentile, keyed by the percentile itself.
	Percentiles map[float64]float64

	// LatencyTrend is the least-squares slope of per-bucket mean
	// latencies over the trend window, in ms per bucket.
	LatencyTrend float64

	// Resources holds current/baseline/trend per recorded gauge.
	Resources map[string]ResourceStats

	Trips             int
	Recoveries        int
	PartialRecoveries int

	// TripPatterns groups regular inter-trip intervals. Irregular trips
	// produce no pattern.
	TripPatterns []TripPattern
}

// ResourceStats summarizes one resource gauge.
type ResourceStats struct {
	// Current is the most recent sample.
	Current float64

	// Baseline is the trailing average of completed bucket means; the
	// in-progress bucket is excluded once a second bucket exists.
	Baseline float64

	// Trend is the slope of per-bucket means over the trend window.
	Trend float64
}

// TripPattern is a run of circuit trips with near-constant spacing.
type TripPattern struct {
	// MeanInterval is the average spacing within the run.
	MeanInterval time.Duration

	// Count is the number of intervals in the run (trips minus one).
	Count int
}

// Snapshot aggregates the live window. Buckets outside the window are
// ignored even if the cleanup loop has not evicted them yet.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	live := c.liveBucketsLocked(now)

	snap := Snapshot{
		WindowStart: now.Add(-c.config.WindowSize),
		WindowEnd:   now,
		Buckets:     len(live),
		Percentiles: make(map[float64]float64, len(c.config.Percentiles)),
		Resources:   make(map[string]ResourceStats),
	}

	var pooled []float64
	var latMeans []float64
	resMeans := make(map[string][]float64)

	for _, b := range live {
		snap.TotalRequests += b.requests
		snap.TotalErrors += b.errors
		snap.Trips += b.trips
		snap.Recoveries += b.recovered
		snap.PartialRecoveries += b.partials
		pooled = append(pooled, b.latencies...)
		if b.latStats.count > 0 {
			latMeans = append(latMeans, b.latStats.mean)
		}
		for name, stats := range b.resources {
			if stats.count > 0 {
				resMeans[name] = append(resMeans[name], stats.mean)
			}
		}
	}

	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}
	snap.MeanLatency = mean(pooled)
	for _, p := range c.config.Percentiles {
		snap.Percentiles[p] = percentile(pooled, p)
	}
	snap.LatencyTrend = slope(tail(latMeans, c.config.TrendWindow))

	for name, means := range resMeans {
		snap.Resources[name] = ResourceStats{
			Current:  c.resCurrent[name],
			Baseline: trailingBaseline(means),
			Trend:    slope(tail(means, c.config.TrendWindow)),
		}
	}

	snap.TripPatterns = tripPatterns(c.trips)
	return snap
}

// trailingBaseline averages all but the newest bucket mean, falling back
// to the single available mean.
func trailingBaseline(means []float64) float64 {
	if len(means) == 0 {
		return 0
	}
	if len(means) == 1 {
		return means[0]
	}
	return mean(means[:len(means)-1])
}

// tripPatterns groups consecutive inter-trip intervals whose deviation
// from the run's first interval stays within tripIntervalTolerance. Runs
// shorter than two intervals are irregular and dropped. Longest runs
// sort first.
func tripPatterns(trips []time.Time) []TripPattern {
	if len(trips) < 3 {
		return nil
	}

	intervals := make([]time.Duration, 0, len(trips)-1)
	for i := 1; i < len(trips); i++ {
		intervals = append(intervals, trips[i].Sub(trips[i-1]))
	}

	var patterns []TripPattern
	start := 0
	for i := 1; i <= len(intervals); i++ {
		if i < len(intervals) && similarInterval(intervals[start], intervals[i]) {
			continue
		}
		if n := i - start; n >= 2 {
			patterns = append(patterns, TripPattern{
				MeanInterval: meanDuration(intervals[start:i]),
				Count:        n,
			})
		}
		start = i
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].MeanInterval < patterns[j].MeanInterval
	})
	return patterns
}

func similarInterval(anchor, iv time.Duration) bool {
	if anchor <= 0 {
		return iv <= 0
	}
	diff := iv - anchor
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= tripIntervalTolerance*float64(anchor)
}

func meanDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}
