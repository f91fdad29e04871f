package meshguard

import (
	"context"
	"sort"
	"sync"

	"github.com/jonwraymond/meshguard/breaker"
	"github.com/jonwraymond/meshguard/cache"
	"github.com/jonwraymond/meshguard/depgraph"
	"github.com/jonwraymond/meshguard/fallback"
	"github.com/jonwraymond/meshguard/health"
	"github.com/jonwraymond/meshguard/metrics"
	"github.com/jonwraymond/meshguard/observe"
	"github.com/jonwraymond/meshguard/priority"
	"github.com/jonwraymond/meshguard/ratelimit"
	"github.com/jonwraymond/meshguard/timeout"
)

// Config configures a Client. The Breaker, Timeout, RateLimit, and
// Metrics blocks are templates: one instance of each is built per
// target service, with the service name, shared sink, logger, store,
// and collector stamped in.
type Config struct {
	// Service names the service running this client, for telemetry.
	Service string

	// Breaker is the per-target circuit breaker template.
	Breaker breaker.Config

	// Timeout is the per-target adaptive timeout template.
	Timeout timeout.Config

	// RateLimit is the per-target adaptive rate limiter template.
	RateLimit ratelimit.AdaptiveConfig

	// Metrics is the per-target metrics collector template.
	Metrics metrics.Config

	// Priority gates admission across all targets.
	Priority priority.Config

	// Dependency configures the shared dependency graph.
	Dependency depgraph.Config

	// Store replicates circuit state across instances.
	// Default: local-only state
	Store breaker.StateStore

	// Cache serves stale payloads when calls fail.
	// Default: no stale serving
	Cache cache.Cache

	// CachePolicy sets write-through TTLs.
	// Default: cache.DefaultPolicy() when Cache is set
	CachePolicy cache.Policy

	// Keyer derives cache keys for calls that opt in with
	// WithCachePayload. Default: cache.NewDefaultKeyer()
	Keyer cache.Keyer

	// Tracer wraps each call in a span. Default: no tracing
	Tracer observe.Tracer

	// Sink receives every component's metrics. Default: no emission
	Sink observe.Sink

	// Logger receives every component's logs. Default: discard
	Logger observe.Logger
}

// Client is a mesh call guard. It owns one guard set per target
// service (circuit breaker, adaptive timeout, adaptive rate limiter,
// metrics collector, fallback chain), built lazily on first call, plus
// the shared priority manager and dependency graph.
type Client struct {
	config     Config
	priorities *priority.Manager
	graph      *depgraph.Graph

	mu     sync.Mutex
	guards map[string]*guard
	closed bool

	// closers tears down resources the client built itself, such as
	// the observer and Redis client of NewFromFile.
	closers []func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc
}

// guard is the protection set for one target service.
type guard struct {
	breaker   *breaker.Breaker
	timeout   *timeout.Adaptive
	limiter   *ratelimit.Adaptive
	collector *metrics.Collector
	chain     *fallback.Chain
}

// New creates a Client. Invalid template configuration fails here, not
// on the first call.
func New(config Config) (*Client, error) {
	if config.Tracer == nil {
		config.Tracer = observe.NewNopTracer()
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Cache != nil && config.CachePolicy == (cache.Policy{}) {
		config.CachePolicy = cache.DefaultPolicy()
	}
	if config.Keyer == nil {
		config.Keyer = cache.NewDefaultKeyer()
	}

	pc := config.Priority
	pc.Service = config.Service
	pc.Sink = config.Sink
	priorities, err := priority.New(pc)
	if err != nil {
		return nil, err
	}

	dc := config.Dependency
	dc.Sink = config.Sink
	dc.Logger = config.Logger
	graph := depgraph.New(dc)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:     config,
		priorities: priorities,
		graph:      graph,
		guards:     make(map[string]*guard),
		ctx:        ctx,
		cancel:     cancel,
	}

	// Build and discard one guard so template mistakes surface now.
	if _, err := c.newGuard("", false); err != nil {
		cancel()
		return nil, err
	}

	if err := graph.Start(ctx); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

// guard returns the target's protection set, building it on first use.
func (c *Client) guard(service string) (*guard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if g, ok := c.guards[service]; ok {
		return g, nil
	}
	g, err := c.newGuard(service, true)
	if err != nil {
		return nil, err
	}
	c.guards[service] = g
	return g, nil
}

func (c *Client) newGuard(service string, start bool) (*guard, error) {
	mc := c.config.Metrics
	mc.Service = service
	mc.Sink = c.config.Sink
	mc.Logger = c.config.Logger
	collector, err := metrics.New(mc)
	if err != nil {
		return nil, err
	}

	bc := c.config.Breaker
	bc.Service = service
	bc.Store = c.config.Store
	bc.Collector = collector
	bc.Sink = c.config.Sink
	bc.Logger = c.config.Logger
	onChange := bc.OnStateChange
	bc.OnStateChange = func(from, to breaker.State) {
		// A tripped target is an unhealthy dependency; let the graph
		// cascade that to whoever depends on it.
		c.graph.SetHealth(service, stateHealth(to))
		if onChange != nil {
			onChange(from, to)
		}
	}
	brk, err := breaker.New(bc)
	if err != nil {
		return nil, err
	}

	tc := c.config.Timeout
	tc.Service = service
	tc.Sink = c.config.Sink
	adaptive, err := timeout.New(tc)
	if err != nil {
		return nil, err
	}

	rc := c.config.RateLimit
	rc.Service = service
	rc.Sink = c.config.Sink
	limiter, err := ratelimit.NewAdaptive(rc)
	if err != nil {
		return nil, err
	}

	chain := fallback.New(fallback.Config{
		Service: service,
		Cache:   c.config.Cache,
		Policy:  c.config.CachePolicy,
		Sink:    c.config.Sink,
		Logger:  c.config.Logger,
	})

	if start {
		if err := collector.Start(c.ctx); err != nil {
			return nil, err
		}
	}

	return &guard{
		breaker:   brk,
		timeout:   adaptive,
		limiter:   limiter,
		collector: collector,
		chain:     chain,
	}, nil
}

func stateHealth(s breaker.State) health.Status {
	switch s {
	case breaker.StateOpen:
		return health.StatusUnhealthy
	case breaker.StateHalfOpen:
		return health.StatusDegraded
	default:
		return health.StatusHealthy
	}
}

// Dependencies returns the shared dependency graph so callers can
// declare edges and register health checkers.
func (c *Client) Dependencies() *depgraph.Graph {
	return c.graph
}

// Priorities returns the shared admission manager so thresholds can be
// adjusted at runtime.
func (c *Client) Priorities() *priority.Manager {
	return c.priorities
}

// Services lists the targets with a built guard set, sorted.
func (c *Client) Services() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.guards))
	for name := range c.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// State returns the target's circuit state, and false when no call has
// been made to it yet.
func (c *Client) State(service string) (breaker.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[service]
	if !ok {
		return breaker.StateClosed, false
	}
	return g.breaker.State(), true
}

// Snapshot returns the target's windowed metrics, and false when no
// call has been made to it yet.
func (c *Client) Snapshot(service string) (metrics.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[service]
	if !ok {
		return metrics.Snapshot{}, false
	}
	return g.collector.Snapshot(), true
}

// Shutdown stops the dependency graph, every collector loop, and any
// resources the client built itself, waiting for them up to the
// context's deadline. Calls made after Shutdown return ErrClosed.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	guards := make([]*guard, 0, len(c.guards))
	for _, g := range c.guards {
		guards = append(guards, g)
	}
	closers := c.closers
	c.mu.Unlock()

	c.cancel()

	var closeErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.graph.Stop()
		for _, g := range guards {
			g.collector.Stop()
		}
		for _, fn := range closers {
			if err := fn(ctx); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
