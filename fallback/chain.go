package fallback

import (
	"context"
	"strconv"
	"time"

	"github.com/jonwraymond/meshguard/cache"
	"github.com/jonwraymond/meshguard/observe"
)

// Operation is the primary call being guarded.
type Operation func(ctx context.Context) ([]byte, error)

// Handler is one degraded alternative, tried in order after the cache.
type Handler func(ctx context.Context) ([]byte, error)

// Config configures a Chain.
type Config struct {
	// Service tags emitted metrics.
	Service string

	// Cache serves stale payloads when the primary fails and receives
	// successful payloads on the way out. Default: no cache
	Cache cache.Cache

	// Policy sets write-through TTLs.
	// Default: cache.DefaultPolicy() when Cache is set
	Policy cache.Policy

	// Handlers are the ordered degraded alternatives.
	// Default: none
	Handlers []Handler

	// Sink receives fallback counters. Default: no emission
	Sink observe.Sink

	// Logger receives degraded-serving notices and cache write
	// failures. Default: discard
	Logger observe.Logger
}

// Result is the outcome of one guarded call. Degraded is set whenever
// the value did not come from the primary.
type Result struct {
	Value        []byte
	FallbackUsed bool
	Degraded     bool
	Err          error
}

// Chain runs a primary operation and, when it fails, degrades through
// the cache and then the ordered handlers instead of failing the
// caller outright.
type Chain struct {
	config Config
}

// New creates a Chain.
func New(config Config) *Chain {
	if config.Cache != nil && config.Policy == (cache.Policy{}) {
		config.Policy = cache.DefaultPolicy()
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	return &Chain{config: config}
}

type options struct {
	cacheKey    string
	ttl         time.Duration
	handlers    []Handler
	handlersSet bool
}

// Option adjusts one Execute call.
type Option func(*options)

// WithCacheKey enables the cache leg for this call: a fresh success is
// written through under the key, and a primary failure is served from
// it when a value is present.
func WithCacheKey(key string) Option {
	return func(o *options) { o.cacheKey = key }
}

// WithTTL overrides the write-through TTL for this call, still clamped
// by the policy's maximum.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithHandlers replaces the configured handlers for this call. Passing
// none disables them.
func WithHandlers(handlers ...Handler) Option {
	return func(o *options) {
		o.handlers = handlers
		o.handlersSet = true
	}
}

// Execute runs the primary operation. On failure it tries the cache,
// then each handler in order; the first value found is returned marked
// degraded. When everything fails, the result carries the primary's
// error, not the last fallback's, so the root cause stays visible.
func (c *Chain) Execute(ctx context.Context, primary Operation, opts ...Option) (Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	value, primaryErr := primary(ctx)
	if primaryErr == nil {
		c.writeThrough(ctx, o, value)
		return Result{Value: value}, nil
	}

	// A caller that is already gone gets the primary error; stale data
	// cannot help it.
	if ctx.Err() != nil {
		return Result{Err: primaryErr}, primaryErr
	}

	if o.cacheKey != "" && c.config.Cache != nil {
		if cached, ok := c.config.Cache.Get(ctx, o.cacheKey); ok {
			c.config.Sink.Increment(ctx, "mesh.fallback.cache_used", c.tags()...)
			c.config.Logger.Info(ctx, "serving cached fallback",
				observe.Field{Key: "service", Value: c.config.Service},
				observe.Field{Key: "error", Value: primaryErr.Error()},
			)
			return Result{Value: cached, FallbackUsed: true, Degraded: true}, nil
		}
	}

	handlers := c.config.Handlers
	if o.handlersSet {
		handlers = o.handlers
	}
	for i, handler := range handlers {
		if ctx.Err() != nil {
			break
		}
		value, err := handler(ctx)
		if err != nil {
			c.config.Logger.Debug(ctx, "fallback handler failed",
				observe.Field{Key: "service", Value: c.config.Service},
				observe.Field{Key: "handler", Value: strconv.Itoa(i)},
				observe.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		c.config.Sink.Increment(ctx, "mesh.fallback.used", c.tags()...)
		c.config.Logger.Info(ctx, "serving handler fallback",
			observe.Field{Key: "service", Value: c.config.Service},
			observe.Field{Key: "handler", Value: strconv.Itoa(i)},
			observe.Field{Key: "error", Value: primaryErr.Error()},
		)
		return Result{Value: value, FallbackUsed: true, Degraded: true}, nil
	}

	c.config.Sink.Increment(ctx, "mesh.fallback.exhausted", c.tags()...)
	return Result{Err: primaryErr}, primaryErr
}

// writeThrough stores a fresh success for later degraded serving.
// Cache failures are logged, never surfaced.
func (c *Chain) writeThrough(ctx context.Context, o options, value []byte) {
	if o.cacheKey == "" || c.config.Cache == nil {
		return
	}
	ttl := c.config.Policy.EffectiveTTL(o.ttl)
	if ttl <= 0 {
		return
	}
	if err := c.config.Cache.Set(ctx, o.cacheKey, value, ttl); err != nil {
		c.config.Logger.Warn(ctx, "fallback cache write failed",
			observe.Field{Key: "service", Value: c.config.Service},
			observe.Field{Key: "key", Value: o.cacheKey},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (c *Chain) tags() []observe.Tag {
	return []observe.Tag{{Key: "service", Value: c.config.Service}}
}
