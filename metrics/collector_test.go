package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{Service: "billing"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.config.WindowSize != 60*time.Second {
		t.Errorf("WindowSize = %v, want 60s", c.config.WindowSize)
	}
	if c.config.BucketSize != 10*time.Second {
		t.Errorf("BucketSize = %v, want 10s", c.config.BucketSize)
	}
	if len(c.config.Percentiles) != 4 {
		t.Errorf("Percentiles = %v, want 4 defaults", c.config.Percentiles)
	}
	if c.config.AnomalyThreshold != 3 {
		t.Errorf("AnomalyThreshold = %v, want 3", c.config.AnomalyThreshold)
	}
	if c.config.TrendWindow != 6 {
		t.Errorf("TrendWindow = %v, want 6", c.config.TrendWindow)
	}
}

func TestNew_BucketTooLarge(t *testing.T) {
	_, err := New(Config{
		WindowSize: 10 * time.Second,
		BucketSize: 20 * time.Second,
	})
	if !errors.Is(err, ErrBucketTooLarge) {
		t.Errorf("error = %v, want ErrBucketTooLarge", err)
	}
}

func TestNew_InvalidPercentile(t *testing.T) {
	for _, p := range []float64{-1, 0, 101} {
		_, err := New(Config{Percentiles: []float64{p}})
		if !errors.Is(err, ErrInvalidPercentile) {
			t.Errorf("percentile %v: error = %v, want ErrInvalidPercentile", p, err)
		}
	}
}

func TestNew_NegativeThreshold(t *testing.T) {
	_, err := New(Config{AnomalyThreshold: -1})
	if !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("error = %v, want ErrInvalidThreshold", err)
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	c, err := New(Config{Service: "billing"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	c.RecordRequest(ctx, 100*time.Millisecond, false)
	c.RecordRequest(ctx, 200*time.Millisecond, false)
	c.RecordRequest(ctx, 300*time.Millisecond, true)

	snap := c.Snapshot()
	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", snap.TotalErrors)
	}
	if got, want := snap.ErrorRate, 1.0/3.0; !approx(got, want, 1e-9) {
		t.Errorf("ErrorRate = %v, want %v", got, want)
	}
	if got, want := snap.MeanLatency, 200.0; !approx(got, want, 1e-9) {
		t.Errorf("MeanLatency = %v, want %v", got, want)
	}
}

func TestCollector_BucketRotation(t *testing.T) {
	c, err := New(Config{
		WindowSize: time.Minute,
		BucketSize: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.RecordRequest(ctx, 100*time.Millisecond, false)
	c.RecordRequest(ctx, 100*time.Millisecond, false)

	now = now.Add(11 * time.Second)
	c.RecordRequest(ctx, 100*time.Millisecond, false)

	snap := c.Snapshot()
	if snap.Buckets != 2 {
		t.Errorf("Buckets = %d, want 2", snap.Buckets)
	}
	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
}

func TestCollector_SnapshotIgnoresExpiredBuckets(t *testing.T) {
	c, err := New(Config{
		WindowSize: 30 * time.Second,
		BucketSize: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.RecordRequest(ctx, 100*time.Millisecond, true)

	// Move past the window without running the cleanup loop.
	now = now.Add(45 * time.Second)
	c.RecordRequest(ctx, 200*time.Millisecond, false)

	snap := c.Snapshot()
	if snap.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1 (expired bucket ignored)", snap.TotalRequests)
	}
	if snap.TotalErrors != 0 {
		t.Errorf("TotalErrors = %d, want 0", snap.TotalErrors)
	}
}

func TestCollector_CleanupLoopEvicts(t *testing.T) {
	c, err := New(Config{
		WindowSize: 60 * time.Millisecond,
		BucketSize: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	c.RecordRequest(ctx, 100*time.Millisecond, false)

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	time.Sleep(200 * time.Millisecond)

	c.mu.Lock()
	remaining := len(c.buckets)
	c.mu.Unlock()

	if remaining != 0 {
		t.Errorf("buckets remaining = %d, want 0 after eviction", remaining)
	}
}

func TestCollector_StartTwice(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	defer c.Stop()

	if err := c.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestCollector_StopWithoutStart(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Should not panic or block
	c.Stop()
}

func TestCollector_Restart(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Stop()

	if err := c.Start(ctx); err != nil {
		t.Errorf("restart error = %v", err)
	}
	c.Stop()
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.RecordRequest(ctx, 100*time.Millisecond, n%2 == 0)
				c.RecordResource(ctx, "cpu", 0.5)
			}
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	if want := goroutines * perGoroutine; snap.TotalRequests != want {
		t.Errorf("TotalRequests = %d, want %d", snap.TotalRequests, want)
	}
	if want := goroutines / 2 * perGoroutine; snap.TotalErrors != want {
		t.Errorf("TotalErrors = %d, want %d", snap.TotalErrors, want)
	}
}

func TestCollector_AnomalyDetected(t *testing.T) {
	var anomalies []Anomaly
	c, err := New(Config{
		AnomalyThreshold: 2,
		OnAnomaly:        func(a Anomaly) { anomalies = append(anomalies, a) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	// Alternate latencies so the standard deviation is small but nonzero.
	for i := 0; i < 12; i++ {
		latency := 100 * time.Millisecond
		if i%2 == 1 {
			latency = 110 * time.Millisecond
		}
		c.RecordRequest(ctx, latency, false)
	}
	if len(anomalies) != 0 {
		t.Fatalf("anomalies after steady traffic = %d, want 0", len(anomalies))
	}

	c.RecordRequest(ctx, 10*time.Second, false)

	if len(anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(anomalies))
	}
	an := anomalies[0]
	if an.Metric != "latency_ms" {
		t.Errorf("Metric = %q, want latency_ms", an.Metric)
	}
	if an.Value != 10000 {
		t.Errorf("Value = %v, want 10000", an.Value)
	}
	if an.StdDev <= 0 {
		t.Errorf("StdDev = %v, want > 0", an.StdDev)
	}
}

func TestCollector_AnomalyOnResourceGauge(t *testing.T) {
	var anomalies []Anomaly
	c, err := New(Config{
		AnomalyThreshold: 2,
		OnAnomaly:        func(a Anomaly) { anomalies = append(anomalies, a) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		v := 0.4
		if i%2 == 1 {
			v = 0.5
		}
		c.RecordResource(ctx, "memory_usage", v)
	}
	c.RecordResource(ctx, "memory_usage", 0.99)

	if len(anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(anomalies))
	}
	if anomalies[0].Metric != "memory_usage" {
		t.Errorf("Metric = %q, want memory_usage", anomalies[0].Metric)
	}
}

func TestCollector_NoAnomalyBelowMinSamples(t *testing.T) {
	var anomalies []Anomaly
	c, err := New(Config{
		AnomalyThreshold: 2,
		OnAnomaly:        func(a Anomaly) { anomalies = append(anomalies, a) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	c.RecordRequest(ctx, 100*time.Millisecond, false)
	c.RecordRequest(ctx, 10*time.Second, false)

	if len(anomalies) != 0 {
		t.Errorf("anomalies = %d, want 0 with too few samples", len(anomalies))
	}
}

func TestCollector_RecordTripAndRecovery(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	c.RecordTrip(ctx)
	c.RecordTrip(ctx)
	c.RecordRecovery(ctx, false)
	c.RecordRecovery(ctx, true)

	snap := c.Snapshot()
	if snap.Trips != 2 {
		t.Errorf("Trips = %d, want 2", snap.Trips)
	}
	if snap.Recoveries != 2 {
		t.Errorf("Recoveries = %d, want 2", snap.Recoveries)
	}
	if snap.PartialRecoveries != 1 {
		t.Errorf("PartialRecoveries = %d, want 1", snap.PartialRecoveries)
	}
}

func TestCollector_TripHistoryBounded(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < maxTripHistory+20; i++ {
		c.RecordTrip(ctx)
	}

	c.mu.Lock()
	got := len(c.trips)
	c.mu.Unlock()

	if got != maxTripHistory {
		t.Errorf("trip history = %d, want %d", got, maxTripHistory)
	}
}

func approx(got, want, eps float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= eps
}
