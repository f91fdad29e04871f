package meshguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/meshguard/breaker"
	"github.com/jonwraymond/meshguard/cache"
	"github.com/jonwraymond/meshguard/depgraph"
	"github.com/jonwraymond/meshguard/health"
	"github.com/jonwraymond/meshguard/observe"
	"github.com/jonwraymond/meshguard/priority"
	"github.com/jonwraymond/meshguard/ratelimit"
)

// tripPayments drives the payments breaker open through Do.
func tripPayments(t *testing.T, c *Client) {
	t.Helper()
	boom := errors.New("payments: down")
	for i := 0; i < 2; i++ {
		if _, err := c.Do(context.Background(), "payments", failOp(boom)); !errors.Is(err, boom) {
			t.Fatalf("Do() error = %v, want %v", err, boom)
		}
	}
	if state, _ := c.State("payments"); state != breaker.StateOpen {
		t.Fatalf("State() after failures = %v, want %v", state, breaker.StateOpen)
	}
}

func TestDo_FailsFastWhileOpen(t *testing.T) {
	c := newTestClient(t, testConfig())
	tripPayments(t, c)

	calls := 0
	res, err := c.Do(context.Background(), "payments", func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Do() error = %v, want ErrCircuitOpen", err)
	}
	if !errors.Is(res.Err, ErrCircuitOpen) {
		t.Errorf("Result.Err = %v, want ErrCircuitOpen", res.Err)
	}
	if calls != 0 {
		t.Errorf("operation ran %d times while open, want 0", calls)
	}
}

func TestDo_CriticalBypassesOpenCircuit(t *testing.T) {
	c := newTestClient(t, testConfig())
	tripPayments(t, c)

	res, err := c.Do(context.Background(), "payments", okOp("refund"), WithTier(priority.TierCritical))
	if err != nil {
		t.Fatalf("critical Do() error = %v", err)
	}
	if string(res.Value) != "refund" {
		t.Errorf("Value = %q, want %q", res.Value, "refund")
	}

	// One success does not close an open circuit.
	if state, _ := c.State("payments"); state != breaker.StateOpen {
		t.Errorf("State() = %v, want %v", state, breaker.StateOpen)
	}
}

func TestDo_ProbeAfterResetTimeout(t *testing.T) {
	c := newTestClient(t, testConfig())
	tripPayments(t, c)

	time.Sleep(60 * time.Millisecond)

	res, err := c.Do(context.Background(), "payments", okOp("probe"))
	if err != nil {
		t.Fatalf("probe Do() error = %v", err)
	}
	if string(res.Value) != "probe" {
		t.Errorf("Value = %q, want %q", res.Value, "probe")
	}
	if state, _ := c.State("payments"); state != breaker.StateHalfOpen {
		t.Errorf("State() after probe = %v, want %v", state, breaker.StateHalfOpen)
	}
}

func TestDo_HalfOpenAdmitsHighTiersOnly(t *testing.T) {
	c := newTestClient(t, testConfig())
	tripPayments(t, c)

	time.Sleep(60 * time.Millisecond)
	if _, err := c.Do(context.Background(), "payments", okOp("probe")); err != nil {
		t.Fatalf("probe Do() error = %v", err)
	}

	// Normal traffic stays blocked until recovery completes.
	if _, err := c.Do(context.Background(), "payments", okOp("ok")); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("normal Do() in half-open error = %v, want ErrCircuitOpen", err)
	}

	// A second half-open success completes the recovery.
	if _, err := c.Do(context.Background(), "payments", okOp("ok"), WithTier(priority.TierHigh)); err != nil {
		t.Fatalf("high Do() in half-open error = %v", err)
	}
	if state, _ := c.State("payments"); state != breaker.StateClosed {
		t.Fatalf("State() after recovery = %v, want %v", state, breaker.StateClosed)
	}

	if _, err := c.Do(context.Background(), "payments", okOp("ok")); err != nil {
		t.Errorf("normal Do() after recovery error = %v", err)
	}
}

func TestDo_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = ratelimit.AdaptiveConfig{Rate: 1, Burst: 1}
	c := newTestClient(t, cfg)

	if _, err := c.Do(context.Background(), "payments", okOp("ok")); err != nil {
		t.Fatalf("first Do() error = %v", err)
	}

	calls := 0
	_, err := c.Do(context.Background(), "payments", func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, ErrAdmissionRejected) {
		t.Fatalf("second Do() error = %v, want ErrAdmissionRejected", err)
	}
	if calls != 0 {
		t.Errorf("operation ran %d times past the limiter, want 0", calls)
	}
}

func TestDo_TierFloor(t *testing.T) {
	cfg := testConfig()
	cfg.Priority.MinTier = priority.TierNormal
	c := newTestClient(t, cfg)

	if _, err := c.Do(context.Background(), "payments", okOp("ok"), WithTier(priority.TierLow)); !errors.Is(err, ErrAdmissionRejected) {
		t.Fatalf("low Do() error = %v, want ErrAdmissionRejected", err)
	}

	// Critical ignores the floor.
	if _, err := c.Do(context.Background(), "payments", okOp("ok"), WithTier(priority.TierCritical)); err != nil {
		t.Errorf("critical Do() error = %v", err)
	}
}

func TestDo_AdaptiveTimeoutExpires(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout.InitialTimeout = 30 * time.Millisecond
	c := newTestClient(t, cfg)

	res, err := c.Do(context.Background(), "payments", func(ctx context.Context) ([]byte, error) {
		select {
		case <-time.After(2 * time.Second):
			return []byte("late"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Do() error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error does not match context.DeadlineExceeded")
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("Result.Err = %v, want ErrTimeout", res.Err)
	}

	snap, ok := c.Snapshot("payments")
	if !ok {
		t.Fatal("Snapshot() found no guard")
	}
	if snap.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", snap.TotalErrors)
	}
}

func TestDo_CallerDeadlineIsNotATimeout(t *testing.T) {
	c := newTestClient(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	_, err := c.Do(ctx, "payments", func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("caller's own deadline was reported as an adaptive timeout")
	}
}

func TestDo_WritesThroughAndServesStale(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = cache.NewMemoryCache(cache.MemoryConfig{})
	cfg.CachePolicy = cache.Policy{DefaultTTL: time.Minute, MaxTTL: time.Hour}
	c := newTestClient(t, cfg)
	ctx := context.Background()

	res, err := c.Do(ctx, "payments", okOp(`{"quote":42}`), WithCacheKey("quote:usd"))
	if err != nil {
		t.Fatalf("fresh Do() error = %v", err)
	}
	if res.Degraded {
		t.Error("fresh result marked degraded")
	}

	boom := errors.New("payments: down")
	res, err = c.Do(ctx, "payments", failOp(boom), WithCacheKey("quote:usd"))
	if err != nil {
		t.Fatalf("stale Do() error = %v", err)
	}
	if string(res.Value) != `{"quote":42}` {
		t.Errorf("Value = %q, want cached quote", res.Value)
	}
	if !res.FallbackUsed || !res.Degraded {
		t.Errorf("FallbackUsed = %v, Degraded = %v, want true", res.FallbackUsed, res.Degraded)
	}
}

func TestDo_PayloadKeyedStaleServe(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = cache.NewMemoryCache(cache.MemoryConfig{})
	cfg.CachePolicy = cache.Policy{DefaultTTL: time.Minute, MaxTTL: time.Hour}
	c := newTestClient(t, cfg)
	ctx := context.Background()

	if _, err := c.Do(ctx, "payments", okOp("fresh"),
		WithCachePayload(map[string]any{"order": "123", "currency": "USD"}),
	); err != nil {
		t.Fatalf("fresh Do() error = %v", err)
	}

	// An equal payload built in a different order lands on the same key.
	res, err := c.Do(ctx, "payments", failOp(errors.New("payments: down")),
		WithCachePayload(map[string]any{"currency": "USD", "order": "123"}),
	)
	if err != nil {
		t.Fatalf("stale Do() error = %v", err)
	}
	if string(res.Value) != "fresh" || !res.Degraded {
		t.Errorf("Value = %q, Degraded = %v, want cached degraded value", res.Value, res.Degraded)
	}
}

func TestDo_UnkeyablePayloadStillCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = cache.NewMemoryCache(cache.MemoryConfig{})
	c := newTestClient(t, cfg)

	res, err := c.Do(context.Background(), "payments", okOp("ok"),
		WithCachePayload(func() {}),
	)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(res.Value) != "ok" {
		t.Errorf("Value = %q, want %q", res.Value, "ok")
	}
}

func TestDo_ServesStaleWhileCircuitOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = cache.NewMemoryCache(cache.MemoryConfig{})
	cfg.CachePolicy = cache.Policy{DefaultTTL: time.Minute, MaxTTL: time.Hour}
	c := newTestClient(t, cfg)
	ctx := context.Background()

	if _, err := c.Do(ctx, "payments", okOp("cached"), WithCacheKey("quote:usd")); err != nil {
		t.Fatalf("priming Do() error = %v", err)
	}
	tripPayments(t, c)

	calls := 0
	res, err := c.Do(ctx, "payments", func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, errors.New("unreachable")
	}, WithCacheKey("quote:usd"))
	if err != nil {
		t.Fatalf("Do() while open error = %v", err)
	}
	if calls != 0 {
		t.Errorf("operation ran %d times while open, want 0", calls)
	}
	if string(res.Value) != "cached" || !res.Degraded {
		t.Errorf("Value = %q, Degraded = %v, want cached degraded value", res.Value, res.Degraded)
	}
}

func TestDo_FallbackHandlers(t *testing.T) {
	c := newTestClient(t, testConfig())
	boom := errors.New("payments: down")

	res, err := c.Do(context.Background(), "payments", failOp(boom), WithFallbacks(
		func(ctx context.Context) ([]byte, error) { return nil, errors.New("replica down too") },
		func(ctx context.Context) ([]byte, error) { return []byte("backup"), nil },
	))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(res.Value) != "backup" {
		t.Errorf("Value = %q, want %q", res.Value, "backup")
	}
	if !res.FallbackUsed || !res.Degraded {
		t.Errorf("FallbackUsed = %v, Degraded = %v, want true", res.FallbackUsed, res.Degraded)
	}
}

func TestDo_ExhaustedFallbacksReturnOriginalError(t *testing.T) {
	c := newTestClient(t, testConfig())
	boom := errors.New("payments: down")

	res, err := c.Do(context.Background(), "payments", failOp(boom), WithFallbacks(
		func(ctx context.Context) ([]byte, error) { return nil, errors.New("replica down too") },
	))
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want the primary error", err)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("Result.Err = %v, want the primary error", res.Err)
	}
	if res.FallbackUsed {
		t.Error("FallbackUsed = true after exhaustion")
	}
}

func TestDo_OperationErrorPassesThrough(t *testing.T) {
	c := newTestClient(t, testConfig())
	boom := errors.New("payments: 503")

	res, err := c.Do(context.Background(), "payments", failOp(boom))
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("Result.Err = %v, want %v", res.Err, boom)
	}
}

func TestDo_TripFeedsDependencyGraph(t *testing.T) {
	cfg := testConfig()
	c := newTestClient(t, cfg)
	graph := c.Dependencies()
	if err := graph.AddDependency("checkout", "payments", depgraph.KindCritical, 1.0); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}

	tripPayments(t, c)

	if got := graph.Health("payments"); got != health.StatusUnhealthy {
		t.Fatalf("Health(payments) = %v, want %v", got, health.StatusUnhealthy)
	}
	if graph.DependencySatisfied("checkout", "payments") {
		t.Error("DependencySatisfied() = true with the dependency tripped")
	}

	// Recovery closes the circuit and heals the node.
	time.Sleep(60 * time.Millisecond)
	if _, err := c.Do(context.Background(), "payments", okOp("ok"), WithTier(priority.TierHigh)); err != nil {
		t.Fatalf("probe Do() error = %v", err)
	}
	if got := graph.Health("payments"); got != health.StatusDegraded {
		t.Fatalf("Health(payments) half-open = %v, want %v", got, health.StatusDegraded)
	}
	if _, err := c.Do(context.Background(), "payments", okOp("ok"), WithTier(priority.TierHigh)); err != nil {
		t.Fatalf("second probe Do() error = %v", err)
	}
	if got := graph.Health("payments"); got != health.StatusHealthy {
		t.Fatalf("Health(payments) recovered = %v, want %v", got, health.StatusHealthy)
	}
	if !graph.DependencySatisfied("checkout", "payments") {
		t.Error("DependencySatisfied() = false after recovery")
	}
}

// recordingTracer counts spans and keeps the last metadata and error.
type recordingTracer struct {
	inner   observe.Tracer
	starts  int
	meta    observe.ServiceMeta
	lastErr error
}

func (r *recordingTracer) StartSpan(ctx context.Context, meta observe.ServiceMeta) (context.Context, trace.Span) {
	r.starts++
	r.meta = meta
	return r.inner.StartSpan(ctx, meta)
}

func (r *recordingTracer) EndSpan(span trace.Span, err error) {
	r.lastErr = err
	r.inner.EndSpan(span, err)
}

func TestDo_SpansCarryCallerAndTarget(t *testing.T) {
	cfg := testConfig()
	tracer := &recordingTracer{inner: observe.NewNopTracer()}
	cfg.Tracer = tracer
	c := newTestClient(t, cfg)

	if _, err := c.Do(context.Background(), "payments", okOp("ok")); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if tracer.starts != 1 {
		t.Fatalf("StartSpan called %d times, want 1", tracer.starts)
	}
	if tracer.meta.Service != "payments" || tracer.meta.Caller != "checkout" {
		t.Errorf("span meta = %+v, want payments called by checkout", tracer.meta)
	}
	if tracer.lastErr != nil {
		t.Errorf("EndSpan error = %v, want nil", tracer.lastErr)
	}

	boom := errors.New("payments: down")
	if _, err := c.Do(context.Background(), "payments", failOp(boom)); !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}
	if !errors.Is(tracer.lastErr, boom) {
		t.Errorf("EndSpan error = %v, want the call's error", tracer.lastErr)
	}
}
