package metrics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonwraymond/meshguard/observe"
)

// minAnomalySamples is how many samples a bucket needs before anomaly
// detection engages; below this the standard deviation is noise.
const minAnomalySamples = 10

// maxTripHistory bounds the trip timestamps retained for pattern
// detection. Patterns describe behavior over a longer horizon than the
// bucket window, so this history survives bucket eviction.
const maxTripHistory = 64

// Config configures a Collector.
type Config struct {
	// Service tags every emitted metric.
	Service string

	// WindowSize is the total span covered by retained buckets.
	// Default: 60 seconds
	WindowSize time.Duration

	// BucketSize is the span of a single bucket.
	// Default: 10 seconds
	BucketSize time.Duration

	// Percentiles are the latency percentiles computed by Snapshot.
	// Values are in (0, 100]. Default: 50, 90, 95, 99
	Percentiles []float64

	// AnomalyThreshold is how many standard deviations a sample may
	// stray from the current bucket's mean before it is flagged.
	// Default: 3.0
	AnomalyThreshold float64

	// TrendWindow is the number of recent buckets used for trend slopes.
	// Default: 6
	TrendWindow int

	// OnAnomaly is called when a sample exceeds the anomaly threshold.
	OnAnomaly func(Anomaly)

	// Sink receives per-sample emission. Default: no emission.
	Sink observe.Sink

	// Logger receives anomaly warnings. Default: no logging.
	Logger observe.Logger
}

// Anomaly describes a sample that landed outside the expected band.
// Anomalies are advisory: they are logged and counted, never returned
// as errors.
type Anomaly struct {
	// Metric names the series, e.g. "latency_ms" or a resource name.
	Metric string

	// Value is the offending sample.
	Value float64

	// Mean and StdDev describe the band the sample was checked against.
	Mean   float64
	StdDev float64

	// Threshold is the configured multiple of StdDev.
	Threshold float64

	// At is when the sample was recorded.
	At time.Time
}

// bucket is one time slice of accumulated stats.
type bucket struct {
	start     time.Time
	requests  int
	errors    int
	latencies []float64
	latStats  runningStats
	resources map[string]*runningStats
	trips     int
	recovered int
	partials  int
}

func newBucket(start time.Time) *bucket {
	return &bucket{
		start:     start,
		resources: make(map[string]*runningStats),
	}
}

// Collector accumulates request outcomes, latencies, and resource gauges
// into rotating time buckets and answers aggregate questions about the
// live window.
//
// Record methods are safe for concurrent use and never block on I/O.
// Bucket rotation happens inline as samples arrive; eviction of expired
// buckets is done by the cleanup loop started with Start. Snapshot and
// HealthStatus only consider buckets inside the window regardless of
// whether eviction has caught up.
type Collector struct {
	config Config

	mu         sync.Mutex
	buckets    []*bucket
	trips      []time.Time
	resCurrent map[string]float64
	started    bool
	stopCh     chan struct{}
	done       chan struct{}

	now func() time.Time
}

// New creates a Collector. Invalid ranges fail fast; zero values take
// defaults.
func New(config Config) (*Collector, error) {
	if config.WindowSize <= 0 {
		config.WindowSize = 60 * time.Second
	}
	if config.BucketSize <= 0 {
		config.BucketSize = 10 * time.Second
	}
	if config.BucketSize > config.WindowSize {
		return nil, ErrBucketTooLarge
	}
	if len(config.Percentiles) == 0 {
		config.Percentiles = []float64{50, 90, 95, 99}
	}
	for _, p := range config.Percentiles {
		if p <= 0 || p > 100 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPercentile, p)
		}
	}
	if config.AnomalyThreshold < 0 {
		return nil, ErrInvalidThreshold
	}
	if config.AnomalyThreshold == 0 {
		config.AnomalyThreshold = 3
	}
	if config.TrendWindow <= 0 {
		config.TrendWindow = 6
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	return &Collector{
		config:     config,
		resCurrent: make(map[string]float64),
		now:        time.Now,
	}, nil
}

// RecordRequest records one call outcome with its latency.
func (c *Collector) RecordRequest(ctx context.Context, latency time.Duration, isError bool) {
	ms := float64(latency) / float64(time.Millisecond)

	c.mu.Lock()
	b := c.currentBucketLocked()
	b.requests++
	if isError {
		b.errors++
	}
	an := c.checkAnomalyLocked(&b.latStats, "latency_ms", ms)
	b.latStats.push(ms)
	b.latencies = append(b.latencies, ms)
	c.mu.Unlock()

	c.config.Sink.Increment(ctx, "mesh.metrics.requests", c.tag())
	if isError {
		c.config.Sink.Increment(ctx, "mesh.metrics.errors", c.tag())
	}
	c.config.Sink.Observe(ctx, "mesh.metrics.latency_ms", ms, c.tag())
	c.emitAnomaly(ctx, an)
}

// RecordResource records a named resource gauge sample, e.g. cpu or
// memory usage.
func (c *Collector) RecordResource(ctx context.Context, name string, value float64) {
	c.mu.Lock()
	b := c.currentBucketLocked()
	stats, ok := b.resources[name]
	if !ok {
		stats = &runningStats{}
		b.resources[name] = stats
	}
	an := c.checkAnomalyLocked(stats, name, value)
	stats.push(value)
	c.resCurrent[name] = value
	c.mu.Unlock()

	c.config.Sink.Gauge(ctx, "mesh.metrics.resource", value, c.tag(), observe.Tag{Key: "resource", Value: name})
	c.emitAnomaly(ctx, an)
}

// RecordTrip records a circuit trip.
func (c *Collector) RecordTrip(ctx context.Context) {
	c.mu.Lock()
	b := c.currentBucketLocked()
	b.trips++
	c.trips = append(c.trips, c.now())
	if len(c.trips) > maxTripHistory {
		c.trips = c.trips[len(c.trips)-maxTripHistory:]
	}
	c.mu.Unlock()

	c.config.Sink.Increment(ctx, "mesh.metrics.trips", c.tag())
}

// RecordRecovery records a recovery attempt outcome. Partial recoveries
// count separately from complete ones.
func (c *Collector) RecordRecovery(ctx context.Context, partial bool) {
	c.mu.Lock()
	b := c.currentBucketLocked()
	b.recovered++
	if partial {
		b.partials++
	}
	c.mu.Unlock()

	c.config.Sink.Increment(ctx, "mesh.metrics.recoveries", c.tag(),
		observe.Tag{Key: "partial", Value: fmt.Sprintf("%t", partial)})
}

// Start launches the bucket cleanup loop. The loop evicts buckets that
// fell out of the window once per bucket interval until ctx is cancelled
// or Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	stopCh, done := c.stopCh, c.done
	c.mu.Unlock()

	go c.cleanupLoop(ctx, stopCh, done)
	return nil
}

// Stop halts the cleanup loop and waits for it to exit. Safe to call
// when not started.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	stopCh, done := c.stopCh, c.done
	c.mu.Unlock()

	close(stopCh)
	<-done
}

func (c *Collector) cleanupLoop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.config.BucketSize)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.evictLocked()
			c.mu.Unlock()
		}
	}
}

// currentBucketLocked returns the bucket covering now, rotating to a
// fresh one when the previous bucket's interval has elapsed.
func (c *Collector) currentBucketLocked() *bucket {
	now := c.now()
	if n := len(c.buckets); n > 0 {
		last := c.buckets[n-1]
		if now.Sub(last.start) < c.config.BucketSize {
			return last
		}
	}

	b := newBucket(now)
	c.buckets = append(c.buckets, b)

	// Growth guard for collectors running without the cleanup loop.
	if limit := c.windowBuckets(); len(c.buckets) > 2*limit {
		c.evictLocked()
	}
	return b
}

func (c *Collector) windowBuckets() int {
	return int(c.config.WindowSize/c.config.BucketSize) + 1
}

// evictLocked drops buckets that ended before the window start.
func (c *Collector) evictLocked() {
	cutoff := c.now().Add(-c.config.WindowSize)
	keep := c.buckets[:0]
	for _, b := range c.buckets {
		if b.start.Add(c.config.BucketSize).After(cutoff) {
			keep = append(keep, b)
		}
	}
	for i := len(keep); i < len(c.buckets); i++ {
		c.buckets[i] = nil
	}
	c.buckets = keep
}

// liveBucketsLocked returns the buckets overlapping the current window.
func (c *Collector) liveBucketsLocked(now time.Time) []*bucket {
	cutoff := now.Add(-c.config.WindowSize)
	var live []*bucket
	for _, b := range c.buckets {
		if b.start.Add(c.config.BucketSize).After(cutoff) {
			live = append(live, b)
		}
	}
	return live
}

func (c *Collector) checkAnomalyLocked(stats *runningStats, metric string, v float64) *Anomaly {
	if stats.count < minAnomalySamples {
		return nil
	}
	std := stats.std()
	if std == 0 {
		return nil
	}
	if math.Abs(v-stats.mean) <= c.config.AnomalyThreshold*std {
		return nil
	}
	return &Anomaly{
		Metric:    metric,
		Value:     v,
		Mean:      stats.mean,
		StdDev:    std,
		Threshold: c.config.AnomalyThreshold,
		At:        c.now(),
	}
}

// emitAnomaly publishes an anomaly as a warning signal. Runs outside the
// collector lock.
func (c *Collector) emitAnomaly(ctx context.Context, an *Anomaly) {
	if an == nil {
		return
	}

	c.config.Logger.Warn(ctx, "metric sample outside anomaly band",
		observe.Field{Key: "service", Value: c.config.Service},
		observe.Field{Key: "metric", Value: an.Metric},
		observe.Field{Key: "value", Value: an.Value},
		observe.Field{Key: "mean", Value: an.Mean},
		observe.Field{Key: "std_dev", Value: an.StdDev},
	)
	c.config.Sink.Increment(ctx, "mesh.metrics.anomalies", c.tag(),
		observe.Tag{Key: "metric", Value: an.Metric})
	if c.config.OnAnomaly != nil {
		c.config.OnAnomaly(*an)
	}
}

func (c *Collector) tag() observe.Tag {
	return observe.Tag{Key: "service", Value: c.config.Service}
}
