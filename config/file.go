// Package config loads the engine's YAML configuration with defaults,
// validation, environment variable substitution, and fsnotify-driven
// hot reload. Library users constructing components directly can
// ignore this package entirely.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/meshguard/observe"
	"github.com/jonwraymond/meshguard/priority"
	"github.com/jonwraymond/meshguard/ratelimit"
	"github.com/jonwraymond/meshguard/timeout"
)

// File is the top-level configuration. Every block is optional and
// every field has a safe default, so an empty file is a valid file.
type File struct {
	// Service names the service running the engine, for telemetry.
	Service string `yaml:"service"`
	Version string `yaml:"version"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Timeout        TimeoutConfig        `yaml:"timeout"`
	Dependency     DependencyConfig     `yaml:"dependency"`
	Priority       PriorityConfig       `yaml:"priority"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitMetrics CircuitMetricsConfig `yaml:"circuit_metrics"`
	Cache          CacheConfig          `yaml:"cache"`
	Observe        ObserveConfig        `yaml:"observe"`
}

// CircuitBreakerConfig holds per-service breaker settings.
type CircuitBreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`     // consecutive failures before tripping; default 5
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"` // open-state wait before probing; default 30
	WindowSize          int `yaml:"window_size"`           // error-rate window in calls; default 20
	MinSamples          int `yaml:"min_samples"`           // calls before the error rate counts; default 10
}

// ResetTimeout returns the open-state wait as a time.Duration.
func (c CircuitBreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSeconds) * time.Second
}

// TimeoutConfig holds adaptive timeout settings.
type TimeoutConfig struct {
	MinTimeoutMs     int     `yaml:"min_timeout_ms"`     // default 100
	MaxTimeoutMs     int     `yaml:"max_timeout_ms"`     // default 30000
	InitialTimeoutMs int     `yaml:"initial_timeout_ms"` // default 1000
	Strategy         string  `yaml:"strategy"`           // "hybrid", "percentile", or "adaptive"; default "hybrid"
	WindowSize       int     `yaml:"window_size"`        // retained latency samples; default 100
	Percentile       float64 `yaml:"percentile"`         // default 95
	AdjustmentFactor float64 `yaml:"adjustment_factor"`  // headroom above observed latency; default 1.5
}

// MinTimeout returns the floor as a time.Duration.
func (c TimeoutConfig) MinTimeout() time.Duration {
	return time.Duration(c.MinTimeoutMs) * time.Millisecond
}

// MaxTimeout returns the ceiling as a time.Duration.
func (c TimeoutConfig) MaxTimeout() time.Duration {
	return time.Duration(c.MaxTimeoutMs) * time.Millisecond
}

// InitialTimeout returns the pre-sample timeout as a time.Duration.
func (c TimeoutConfig) InitialTimeout() time.Duration {
	return time.Duration(c.InitialTimeoutMs) * time.Millisecond
}

// TimeoutStrategy returns the parsed strategy. Load rejects unknown
// names, so a hand-built config with a bad name falls back to hybrid.
func (c TimeoutConfig) TimeoutStrategy() timeout.Strategy {
	s, err := timeout.ParseStrategy(c.Strategy)
	if err != nil {
		return timeout.StrategyHybrid
	}
	return s
}

// DependencyConfig holds dependency graph and health probe settings.
type DependencyConfig struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // default 30s
	FailureThreshold    int           `yaml:"failure_threshold"`     // consecutive probe failures; default 3
	RecoveryThreshold   int           `yaml:"recovery_threshold"`    // consecutive probe successes; default 2
	CascadeDelay        time.Duration `yaml:"cascade_delay"`         // default 5s
	MaxRetryInterval    time.Duration `yaml:"max_retry_interval"`    // probe backoff ceiling; default 60s
}

// PriorityConfig holds admission tier settings. Tier keys are the
// names "bulk", "low", "normal", "high", and "critical".
type PriorityConfig struct {
	MinTier       string         `yaml:"min_tier"`        // lowest admitted tier; default "bulk"
	ReservedSlots map[string]int `yaml:"reserved_slots"`  // per-tier concurrency; default 10 each
	WaitTimeoutMs map[string]int `yaml:"wait_timeout_ms"` // per-tier slot wait; default none
}

// MinTierValue returns the parsed admission floor. Load rejects
// unknown names, so a hand-built config with a bad name falls back to
// admitting everything.
func (p PriorityConfig) MinTierValue() priority.Tier {
	t, err := priority.ParseTier(p.MinTier)
	if err != nil {
		return priority.TierBulk
	}
	return t
}

// Slots returns the reserved slots keyed by parsed tier. Unknown tier
// names are rejected by Load and skipped here.
func (p PriorityConfig) Slots() map[priority.Tier]int {
	if len(p.ReservedSlots) == 0 {
		return nil
	}
	slots := make(map[priority.Tier]int, len(p.ReservedSlots))
	for name, n := range p.ReservedSlots {
		t, err := priority.ParseTier(name)
		if err != nil {
			continue
		}
		slots[t] = n
	}
	return slots
}

// WaitTimeouts returns the slot waits keyed by parsed tier.
func (p PriorityConfig) WaitTimeouts() map[priority.Tier]time.Duration {
	if len(p.WaitTimeoutMs) == 0 {
		return nil
	}
	waits := make(map[priority.Tier]time.Duration, len(p.WaitTimeoutMs))
	for name, ms := range p.WaitTimeoutMs {
		t, err := priority.ParseTier(name)
		if err != nil {
			continue
		}
		waits[t] = time.Duration(ms) * time.Millisecond
	}
	return waits
}

// RateLimitConfig holds adaptive rate limiter settings.
type RateLimitConfig struct {
	Algorithm         string  `yaml:"algorithm"`           // "token_bucket", "leaky_bucket", "fixed_window", or "sliding_window"; default "token_bucket"
	RequestsPerSecond float64 `yaml:"requests_per_second"` // starting rate; default 100
	BurstSize         int     `yaml:"burst_size"`          // default 10
	WindowSizeSeconds int     `yaml:"window_size_seconds"` // window-algorithm span; default 1
	MinRate           float64 `yaml:"min_rate"`            // adjustment floor; default rate/10
	MaxRate           float64 `yaml:"max_rate"`            // adjustment ceiling; default rate*10
	ScaleFactor       float64 `yaml:"scale_factor"`        // default 1.2
	ErrorThreshold    float64 `yaml:"error_threshold"`     // error rate that shrinks the rate; default 0.1
	CooldownSeconds   int     `yaml:"cooldown_seconds"`    // minimum time between adjustments; default 30
}

// Window returns the window-algorithm span as a time.Duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSizeSeconds) * time.Second
}

// Cooldown returns the adjustment spacing as a time.Duration.
func (r RateLimitConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// RateAlgorithm returns the parsed algorithm. Load rejects unknown
// names, so a hand-built config with a bad name falls back to the
// token bucket.
func (r RateLimitConfig) RateAlgorithm() ratelimit.Algorithm {
	a, err := ratelimit.ParseAlgorithm(r.Algorithm)
	if err != nil {
		return ratelimit.TokenBucket
	}
	return a
}

// CircuitMetricsConfig holds the per-service metrics collector
// settings.
type CircuitMetricsConfig struct {
	WindowSize       time.Duration `yaml:"window_size"`       // total bucketed span; default 60s
	BucketSize       time.Duration `yaml:"bucket_size"`       // default 10s
	Percentiles      []float64     `yaml:"percentiles"`       // default [50, 90, 95, 99]
	AnomalyThreshold float64       `yaml:"anomaly_threshold"` // standard deviations; default 3.0
	TrendWindow      int           `yaml:"trend_window"`      // buckets per trend slope; default 6
}

// CacheConfig holds fallback cache settings. Redis is used when an
// address is set, the in-process cache otherwise.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"` // in-process entry cap; default 1024
	DefaultTTL time.Duration `yaml:"default_ttl"` // write-through TTL; default 5m
	MaxTTL     time.Duration `yaml:"max_ttl"`     // TTL ceiling; default 1h
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the shared cache connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"` // empty keeps the cache in-process
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"` // default "meshguard:fallback:"
}

// ObserveConfig holds telemetry settings. Everything defaults to
// disabled.
type ObserveConfig struct {
	Tracing TracingConfig       `yaml:"tracing"`
	Metrics MetricsExportConfig `yaml:"metrics"`
	Logging LoggingOutputConfig `yaml:"logging"`
}

// TracingConfig enables span export.
type TracingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Exporter  string  `yaml:"exporter"`   // "otlp", "jaeger", "stdout", or "none"
	SamplePct float64 `yaml:"sample_pct"` // 0.0 to 1.0
}

// MetricsExportConfig enables metric export.
type MetricsExportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "otlp", "prometheus", "stdout", or "none"
}

// LoggingOutputConfig enables structured logging.
type LoggingOutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // "debug", "info", "warn", or "error"
}

// ObserverConfig maps the telemetry block onto the observe package.
func (f *File) ObserverConfig() observe.Config {
	return observe.Config{
		ServiceName: f.Service,
		Version:     f.Version,
		Tracing: observe.TracingConfig{
			Enabled:   f.Observe.Tracing.Enabled,
			Exporter:  f.Observe.Tracing.Exporter,
			SamplePct: f.Observe.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  f.Observe.Metrics.Enabled,
			Exporter: f.Observe.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: f.Observe.Logging.Enabled,
			Level:   f.Observe.Logging.Level,
		},
	}
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable value. Unset variables are left verbatim.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads a YAML configuration file, applies environment variable
// substitution, fills defaults, and validates the result.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
func LoadFromBytes(data []byte) (*File, error) {
	expanded := expandEnvVars(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("config: parse file: %w", err)
	}

	f.applyDefaults()

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	cb := &f.CircuitBreaker
	if cb.FailureThreshold == 0 {
		cb.FailureThreshold = 5
	}
	if cb.ResetTimeoutSeconds == 0 {
		cb.ResetTimeoutSeconds = 30
	}
	if cb.WindowSize == 0 {
		cb.WindowSize = 20
	}
	if cb.MinSamples == 0 {
		cb.MinSamples = 10
	}

	to := &f.Timeout
	if to.MinTimeoutMs == 0 {
		to.MinTimeoutMs = 100
	}
	if to.MaxTimeoutMs == 0 {
		to.MaxTimeoutMs = 30000
	}
	if to.InitialTimeoutMs == 0 {
		to.InitialTimeoutMs = 1000
	}
	if to.Strategy == "" {
		to.Strategy = timeout.StrategyHybrid.String()
	}
	if to.WindowSize == 0 {
		to.WindowSize = 100
	}
	if to.Percentile == 0 {
		to.Percentile = 95
	}
	if to.AdjustmentFactor == 0 {
		to.AdjustmentFactor = 1.5
	}

	dep := &f.Dependency
	if dep.HealthCheckInterval == 0 {
		dep.HealthCheckInterval = 30 * time.Second
	}
	if dep.FailureThreshold == 0 {
		dep.FailureThreshold = 3
	}
	if dep.RecoveryThreshold == 0 {
		dep.RecoveryThreshold = 2
	}
	if dep.CascadeDelay == 0 {
		dep.CascadeDelay = 5 * time.Second
	}
	if dep.MaxRetryInterval == 0 {
		dep.MaxRetryInterval = 60 * time.Second
	}

	if f.Priority.MinTier == "" {
		f.Priority.MinTier = priority.TierBulk.String()
	}

	rl := &f.RateLimit
	if rl.Algorithm == "" {
		rl.Algorithm = ratelimit.TokenBucket.String()
	}
	if rl.RequestsPerSecond == 0 {
		rl.RequestsPerSecond = 100
	}
	if rl.BurstSize == 0 {
		rl.BurstSize = 10
	}
	if rl.WindowSizeSeconds == 0 {
		rl.WindowSizeSeconds = 1
	}
	if rl.ScaleFactor == 0 {
		rl.ScaleFactor = 1.2
	}
	if rl.ErrorThreshold == 0 {
		rl.ErrorThreshold = 0.1
	}
	if rl.CooldownSeconds == 0 {
		rl.CooldownSeconds = 30
	}

	cm := &f.CircuitMetrics
	if cm.WindowSize == 0 {
		cm.WindowSize = 60 * time.Second
	}
	if cm.BucketSize == 0 {
		cm.BucketSize = 10 * time.Second
	}
	if len(cm.Percentiles) == 0 {
		cm.Percentiles = []float64{50, 90, 95, 99}
	}
	if cm.AnomalyThreshold == 0 {
		cm.AnomalyThreshold = 3.0
	}
	if cm.TrendWindow == 0 {
		cm.TrendWindow = 6
	}

	ca := &f.Cache
	if ca.MaxEntries == 0 {
		ca.MaxEntries = 1024
	}
	if ca.DefaultTTL == 0 {
		ca.DefaultTTL = 5 * time.Minute
	}
	if ca.MaxTTL == 0 {
		ca.MaxTTL = time.Hour
	}
	if ca.Redis.KeyPrefix == "" {
		ca.Redis.KeyPrefix = "meshguard:fallback:"
	}
}

func (f *File) validate() error {
	cb := f.CircuitBreaker
	if cb.FailureThreshold < 0 {
		return fmt.Errorf("%w: circuit_breaker.failure_threshold must be positive, got %d", ErrInvalid, cb.FailureThreshold)
	}
	if cb.ResetTimeoutSeconds < 0 {
		return fmt.Errorf("%w: circuit_breaker.reset_timeout_seconds must be positive, got %d", ErrInvalid, cb.ResetTimeoutSeconds)
	}
	if cb.WindowSize < 0 {
		return fmt.Errorf("%w: circuit_breaker.window_size must be positive, got %d", ErrInvalid, cb.WindowSize)
	}
	if cb.MinSamples < 0 || cb.MinSamples > cb.WindowSize {
		return fmt.Errorf("%w: circuit_breaker.min_samples must be within the window, got %d", ErrInvalid, cb.MinSamples)
	}

	to := f.Timeout
	if to.MinTimeoutMs < 0 {
		return fmt.Errorf("%w: timeout.min_timeout_ms must be positive, got %d", ErrInvalid, to.MinTimeoutMs)
	}
	if to.MaxTimeoutMs < to.MinTimeoutMs {
		return fmt.Errorf("%w: timeout.max_timeout_ms %d is below min_timeout_ms %d", ErrInvalid, to.MaxTimeoutMs, to.MinTimeoutMs)
	}
	if to.InitialTimeoutMs < to.MinTimeoutMs || to.InitialTimeoutMs > to.MaxTimeoutMs {
		return fmt.Errorf("%w: timeout.initial_timeout_ms %d is outside [%d, %d]", ErrInvalid, to.InitialTimeoutMs, to.MinTimeoutMs, to.MaxTimeoutMs)
	}
	if _, err := timeout.ParseStrategy(to.Strategy); err != nil {
		return fmt.Errorf("%w: timeout.strategy: %v", ErrInvalid, err)
	}
	if to.WindowSize < 0 {
		return fmt.Errorf("%w: timeout.window_size must be positive, got %d", ErrInvalid, to.WindowSize)
	}
	if to.Percentile <= 0 || to.Percentile > 100 {
		return fmt.Errorf("%w: timeout.percentile must be in (0, 100], got %v", ErrInvalid, to.Percentile)
	}
	if to.AdjustmentFactor < 1 {
		return fmt.Errorf("%w: timeout.adjustment_factor must be at least 1, got %v", ErrInvalid, to.AdjustmentFactor)
	}

	dep := f.Dependency
	if dep.HealthCheckInterval < 0 {
		return fmt.Errorf("%w: dependency.health_check_interval must be positive, got %v", ErrInvalid, dep.HealthCheckInterval)
	}
	if dep.FailureThreshold < 0 {
		return fmt.Errorf("%w: dependency.failure_threshold must be positive, got %d", ErrInvalid, dep.FailureThreshold)
	}
	if dep.RecoveryThreshold < 0 {
		return fmt.Errorf("%w: dependency.recovery_threshold must be positive, got %d", ErrInvalid, dep.RecoveryThreshold)
	}
	if dep.CascadeDelay < 0 {
		return fmt.Errorf("%w: dependency.cascade_delay must not be negative, got %v", ErrInvalid, dep.CascadeDelay)
	}
	if dep.MaxRetryInterval < 0 {
		return fmt.Errorf("%w: dependency.max_retry_interval must be positive, got %v", ErrInvalid, dep.MaxRetryInterval)
	}

	if _, err := priority.ParseTier(f.Priority.MinTier); err != nil {
		return fmt.Errorf("%w: priority.min_tier: %v", ErrInvalid, err)
	}
	for name, n := range f.Priority.ReservedSlots {
		if _, err := priority.ParseTier(name); err != nil {
			return fmt.Errorf("%w: priority.reserved_slots: %v", ErrInvalid, err)
		}
		if n < 0 {
			return fmt.Errorf("%w: priority.reserved_slots.%s must not be negative, got %d", ErrInvalid, name, n)
		}
	}
	for name, ms := range f.Priority.WaitTimeoutMs {
		if _, err := priority.ParseTier(name); err != nil {
			return fmt.Errorf("%w: priority.wait_timeout_ms: %v", ErrInvalid, err)
		}
		if ms < 0 {
			return fmt.Errorf("%w: priority.wait_timeout_ms.%s must not be negative, got %d", ErrInvalid, name, ms)
		}
	}

	rl := f.RateLimit
	if _, err := ratelimit.ParseAlgorithm(rl.Algorithm); err != nil {
		return fmt.Errorf("%w: rate_limit.algorithm: %v", ErrInvalid, err)
	}
	if rl.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: rate_limit.requests_per_second must be positive, got %v", ErrInvalid, rl.RequestsPerSecond)
	}
	if rl.BurstSize < 0 {
		return fmt.Errorf("%w: rate_limit.burst_size must be positive, got %d", ErrInvalid, rl.BurstSize)
	}
	if rl.WindowSizeSeconds < 0 {
		return fmt.Errorf("%w: rate_limit.window_size_seconds must be positive, got %d", ErrInvalid, rl.WindowSizeSeconds)
	}
	if rl.MinRate < 0 || (rl.MinRate > 0 && rl.MinRate > rl.RequestsPerSecond) {
		return fmt.Errorf("%w: rate_limit.min_rate must be positive and at most the rate, got %v", ErrInvalid, rl.MinRate)
	}
	if rl.MaxRate < 0 || (rl.MaxRate > 0 && rl.MaxRate < rl.RequestsPerSecond) {
		return fmt.Errorf("%w: rate_limit.max_rate must be at least the rate, got %v", ErrInvalid, rl.MaxRate)
	}
	if rl.ScaleFactor <= 1 {
		return fmt.Errorf("%w: rate_limit.scale_factor must exceed 1, got %v", ErrInvalid, rl.ScaleFactor)
	}
	if rl.ErrorThreshold <= 0 || rl.ErrorThreshold > 1 {
		return fmt.Errorf("%w: rate_limit.error_threshold must be in (0, 1], got %v", ErrInvalid, rl.ErrorThreshold)
	}
	if rl.CooldownSeconds < 0 {
		return fmt.Errorf("%w: rate_limit.cooldown_seconds must be positive, got %d", ErrInvalid, rl.CooldownSeconds)
	}

	cm := f.CircuitMetrics
	if cm.WindowSize < 0 {
		return fmt.Errorf("%w: circuit_metrics.window_size must be positive, got %v", ErrInvalid, cm.WindowSize)
	}
	if cm.BucketSize < 0 || cm.BucketSize > cm.WindowSize {
		return fmt.Errorf("%w: circuit_metrics.bucket_size must fit the window, got %v", ErrInvalid, cm.BucketSize)
	}
	for _, p := range cm.Percentiles {
		if p <= 0 || p > 100 {
			return fmt.Errorf("%w: circuit_metrics.percentiles must be in (0, 100], got %v", ErrInvalid, p)
		}
	}
	if cm.AnomalyThreshold < 0 {
		return fmt.Errorf("%w: circuit_metrics.anomaly_threshold must be positive, got %v", ErrInvalid, cm.AnomalyThreshold)
	}
	if cm.TrendWindow < 0 {
		return fmt.Errorf("%w: circuit_metrics.trend_window must be positive, got %d", ErrInvalid, cm.TrendWindow)
	}

	ca := f.Cache
	if ca.MaxEntries < 0 {
		return fmt.Errorf("%w: cache.max_entries must be positive, got %d", ErrInvalid, ca.MaxEntries)
	}
	if ca.DefaultTTL < 0 {
		return fmt.Errorf("%w: cache.default_ttl must not be negative, got %v", ErrInvalid, ca.DefaultTTL)
	}
	if ca.MaxTTL < ca.DefaultTTL {
		return fmt.Errorf("%w: cache.max_ttl %v is below default_ttl %v", ErrInvalid, ca.MaxTTL, ca.DefaultTTL)
	}

	obs := f.Observe
	if obs.Tracing.Enabled || obs.Metrics.Enabled || obs.Logging.Enabled {
		oc := f.ObserverConfig()
		if err := oc.Validate(); err != nil {
			return fmt.Errorf("%w: observe: %v", ErrInvalid, err)
		}
	}

	return nil
}
