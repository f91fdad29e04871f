package meshguard

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/meshguard/breaker"
	"github.com/jonwraymond/meshguard/cache"
	"github.com/jonwraymond/meshguard/config"
	"github.com/jonwraymond/meshguard/depgraph"
	"github.com/jonwraymond/meshguard/metrics"
	"github.com/jonwraymond/meshguard/observe"
	"github.com/jonwraymond/meshguard/priority"
	"github.com/jonwraymond/meshguard/ratelimit"
	"github.com/jonwraymond/meshguard/timeout"
)

// FromFile maps a loaded configuration file onto component templates.
// It builds no resources: Cache, Store, and the observe hooks stay at
// their zero values for the caller to fill in. NewFromFile does the
// full build.
func FromFile(f *config.File) Config {
	return Config{
		Service: f.Service,
		Breaker: breaker.Config{
			FailureThreshold: f.CircuitBreaker.FailureThreshold,
			ResetTimeout:     f.CircuitBreaker.ResetTimeout(),
			WindowSize:       f.CircuitBreaker.WindowSize,
			MinSamples:       f.CircuitBreaker.MinSamples,
		},
		Timeout: timeout.Config{
			MinTimeout:       f.Timeout.MinTimeout(),
			MaxTimeout:       f.Timeout.MaxTimeout(),
			InitialTimeout:   f.Timeout.InitialTimeout(),
			Strategy:         f.Timeout.TimeoutStrategy(),
			WindowSize:       f.Timeout.WindowSize,
			Percentile:       f.Timeout.Percentile,
			AdjustmentFactor: f.Timeout.AdjustmentFactor,
		},
		RateLimit: ratelimit.AdaptiveConfig{
			Algorithm:      f.RateLimit.RateAlgorithm(),
			Rate:           f.RateLimit.RequestsPerSecond,
			Burst:          f.RateLimit.BurstSize,
			Window:         f.RateLimit.Window(),
			MinRate:        f.RateLimit.MinRate,
			MaxRate:        f.RateLimit.MaxRate,
			ScaleFactor:    f.RateLimit.ScaleFactor,
			ErrorThreshold: f.RateLimit.ErrorThreshold,
			Cooldown:       f.RateLimit.Cooldown(),
		},
		Metrics: metrics.Config{
			WindowSize:       f.CircuitMetrics.WindowSize,
			BucketSize:       f.CircuitMetrics.BucketSize,
			Percentiles:      f.CircuitMetrics.Percentiles,
			AnomalyThreshold: f.CircuitMetrics.AnomalyThreshold,
			TrendWindow:      f.CircuitMetrics.TrendWindow,
		},
		Priority: priority.Config{
			MinTier:       f.Priority.MinTierValue(),
			ReservedSlots: f.Priority.Slots(),
			WaitTimeouts:  f.Priority.WaitTimeouts(),
		},
		Dependency: depgraph.Config{
			HealthCheckInterval: f.Dependency.HealthCheckInterval,
			FailureThreshold:    f.Dependency.FailureThreshold,
			RecoveryThreshold:   f.Dependency.RecoveryThreshold,
			CascadeDelay:        f.Dependency.CascadeDelay,
			MaxRetryInterval:    f.Dependency.MaxRetryInterval,
		},
		CachePolicy: cache.Policy{
			DefaultTTL: f.Cache.DefaultTTL,
			MaxTTL:     f.Cache.MaxTTL,
		},
	}
}

// NewFromFile builds a Client from a configuration file and watches
// the file for changes. It owns everything it builds: the observer,
// the Redis client, the shared cache, the replicated breaker store,
// and the watcher all shut down with the client.
//
// On reload, the admission floor and slot reservations change
// immediately; per-service settings become the template for guards
// built afterwards.
func NewFromFile(ctx context.Context, path string) (*Client, error) {
	f, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	var closers []func(context.Context) error
	fail := func(err error) (*Client, error) {
		for _, fn := range closers {
			fn(ctx)
		}
		return nil, err
	}

	cfg := FromFile(f)

	if f.Observe.Tracing.Enabled || f.Observe.Metrics.Enabled || f.Observe.Logging.Enabled {
		obs, err := observe.NewObserver(ctx, f.ObserverConfig())
		if err != nil {
			return fail(err)
		}
		closers = append(closers, obs.Shutdown)
		cfg.Tracer = observe.NewTracer(obs.Tracer())
		cfg.Sink = obs.Sink()
		cfg.Logger = obs.Logger()
	}

	if addr := f.Cache.Redis.Addr; addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: f.Cache.Redis.Password,
			DB:       f.Cache.Redis.DB,
		})
		closers = append(closers, func(context.Context) error { return rdb.Close() })

		shared, err := cache.NewRedisCache(cache.RedisConfig{
			Client:    rdb,
			KeyPrefix: f.Cache.Redis.KeyPrefix,
			Logger:    cfg.Logger,
		})
		if err != nil {
			return fail(err)
		}
		cfg.Cache = shared

		store, err := breaker.NewRedisStore(breaker.RedisStoreConfig{Client: rdb})
		if err != nil {
			return fail(err)
		}
		cfg.Store = store
	} else {
		cfg.Cache = cache.NewMemoryCache(cache.MemoryConfig{
			MaxEntries: f.Cache.MaxEntries,
			MaxTTL:     f.Cache.MaxTTL,
		})
	}

	rel, err := config.NewReloader(config.ReloaderConfig{Path: path, Logger: cfg.Logger})
	if err != nil {
		return fail(err)
	}
	closers = append([]func(context.Context) error{
		func(context.Context) error { rel.Stop(); return nil },
	}, closers...)

	c, err := New(cfg)
	if err != nil {
		return fail(err)
	}
	c.mu.Lock()
	c.closers = closers
	c.mu.Unlock()

	rel.OnReload(c.applyReload)
	if err := rel.Start(); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}
	return c, nil
}

// applyReload pushes a changed file into the running client. Existing
// guards keep their settings; rebuilding them mid-flight would reset
// learned state for a threshold tweak.
func (c *Client) applyReload(f *config.File) {
	if err := c.priorities.SetMinTier(f.Priority.MinTierValue()); err != nil {
		c.config.Logger.Warn(context.Background(), "reload: min tier rejected",
			observe.Field{Key: "error", Value: err.Error()})
	}
	for tier, slots := range f.Priority.Slots() {
		if err := c.priorities.SetReservedSlots(tier, slots); err != nil {
			c.config.Logger.Warn(context.Background(), "reload: slot reservation rejected",
				observe.Field{Key: "tier", Value: tier.String()},
				observe.Field{Key: "error", Value: err.Error()})
		}
	}

	cfg := FromFile(f)
	c.mu.Lock()
	c.config.Breaker = cfg.Breaker
	c.config.Timeout = cfg.Timeout
	c.config.RateLimit = cfg.RateLimit
	c.config.Metrics = cfg.Metrics
	c.config.CachePolicy = cfg.CachePolicy
	c.mu.Unlock()
}
