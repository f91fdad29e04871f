package meshguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jonwraymond/meshguard/config"
	"github.com/jonwraymond/meshguard/priority"
	"github.com/jonwraymond/meshguard/ratelimit"
	"github.com/jonwraymond/meshguard/timeout"
)

func TestFromFile_MapsTemplates(t *testing.T) {
	f, err := config.LoadFromBytes([]byte(`
service: checkout
circuit_breaker:
  failure_threshold: 7
  reset_timeout_seconds: 45
timeout:
  strategy: percentile
  min_timeout_ms: 50
  max_timeout_ms: 5000
rate_limit:
  algorithm: sliding_window
  requests_per_second: 250
  window_size_seconds: 5
priority:
  min_tier: high
  reserved_slots:
    critical: 20
dependency:
  cascade_delay: 2s
cache:
  default_ttl: 2m
  max_ttl: 10m
`))
	if err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}

	cfg := FromFile(f)
	if cfg.Service != "checkout" {
		t.Errorf("Service = %q, want %q", cfg.Service, "checkout")
	}
	if cfg.Breaker.FailureThreshold != 7 {
		t.Errorf("Breaker.FailureThreshold = %d, want 7", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.ResetTimeout != 45*time.Second {
		t.Errorf("Breaker.ResetTimeout = %v, want 45s", cfg.Breaker.ResetTimeout)
	}
	if cfg.Timeout.Strategy != timeout.StrategyPercentile {
		t.Errorf("Timeout.Strategy = %v, want percentile", cfg.Timeout.Strategy)
	}
	if cfg.Timeout.MinTimeout != 50*time.Millisecond {
		t.Errorf("Timeout.MinTimeout = %v, want 50ms", cfg.Timeout.MinTimeout)
	}
	if cfg.RateLimit.Algorithm != ratelimit.SlidingWindow {
		t.Errorf("RateLimit.Algorithm = %v, want sliding window", cfg.RateLimit.Algorithm)
	}
	if cfg.RateLimit.Rate != 250 {
		t.Errorf("RateLimit.Rate = %v, want 250", cfg.RateLimit.Rate)
	}
	if cfg.RateLimit.Window != 5*time.Second {
		t.Errorf("RateLimit.Window = %v, want 5s", cfg.RateLimit.Window)
	}
	if cfg.Priority.MinTier != priority.TierHigh {
		t.Errorf("Priority.MinTier = %v, want high", cfg.Priority.MinTier)
	}
	if got := cfg.Priority.ReservedSlots[priority.TierCritical]; got != 20 {
		t.Errorf("ReservedSlots[critical] = %d, want 20", got)
	}
	if cfg.Dependency.CascadeDelay != 2*time.Second {
		t.Errorf("Dependency.CascadeDelay = %v, want 2s", cfg.Dependency.CascadeDelay)
	}
	if cfg.CachePolicy.DefaultTTL != 2*time.Minute {
		t.Errorf("CachePolicy.DefaultTTL = %v, want 2m", cfg.CachePolicy.DefaultTTL)
	}
	if cfg.CachePolicy.MaxTTL != 10*time.Minute {
		t.Errorf("CachePolicy.MaxTTL = %v, want 10m", cfg.CachePolicy.MaxTTL)
	}
}

func writeClientConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewFromFile_MissingFile(t *testing.T) {
	if _, err := NewFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("NewFromFile() with a missing file succeeded")
	}
}

func TestNewFromFile_ServesStaleFromMemoryCache(t *testing.T) {
	path := writeClientConfig(t, `
service: checkout
circuit_breaker:
  failure_threshold: 2
`)
	c, err := NewFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	if _, err := c.Do(ctx, "payments", okOp("fresh"), WithCacheKey("quote")); err != nil {
		t.Fatalf("fresh Do() error = %v", err)
	}

	res, err := c.Do(ctx, "payments", failOp(errors.New("payments: down")), WithCacheKey("quote"))
	if err != nil {
		t.Fatalf("stale Do() error = %v", err)
	}
	if string(res.Value) != "fresh" || !res.Degraded {
		t.Errorf("Value = %q, Degraded = %v, want cached degraded value", res.Value, res.Degraded)
	}
}

func TestNewFromFile_WiresRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeClientConfig(t, fmt.Sprintf(`
service: checkout
circuit_breaker:
  failure_threshold: 2
cache:
  redis:
    addr: %s
`, mr.Addr()))

	c, err := NewFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	if _, err := c.Do(ctx, "payments", okOp("fresh"), WithCacheKey("quote")); err != nil {
		t.Fatalf("fresh Do() error = %v", err)
	}
	res, err := c.Do(ctx, "payments", failOp(errors.New("payments: down")), WithCacheKey("quote"))
	if err != nil {
		t.Fatalf("stale Do() error = %v", err)
	}
	if string(res.Value) != "fresh" || !res.Degraded {
		t.Errorf("Value = %q, Degraded = %v, want value served from Redis", res.Value, res.Degraded)
	}

	// The second failure trips the circuit and replicates the state.
	if _, err := c.Do(ctx, "payments", failOp(errors.New("payments: down")), WithCacheKey("quote")); err != nil {
		t.Fatalf("second stale Do() error = %v", err)
	}
	state, err := mr.Get("meshguard:circuit:payments")
	if err != nil {
		t.Fatalf("replicated state missing: %v", err)
	}
	if state != "open" {
		t.Errorf("replicated state = %q, want %q", state, "open")
	}
}

func TestNewFromFile_ReloadAdjustsAdmissionFloor(t *testing.T) {
	path := writeClientConfig(t, `
service: checkout
priority:
  min_tier: normal
`)
	c, err := NewFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	if _, err := c.Do(ctx, "payments", okOp("ok"), WithTier(priority.TierLow)); !errors.Is(err, ErrAdmissionRejected) {
		t.Fatalf("low Do() error = %v, want ErrAdmissionRejected", err)
	}

	if err := os.WriteFile(path, []byte(`
service: checkout
priority:
  min_tier: bulk
`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := c.Do(ctx, "payments", okOp("ok"), WithTier(priority.TierLow)); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("admission floor never dropped after the config change")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
