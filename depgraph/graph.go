package depgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/meshguard/health"
	"github.com/jonwraymond/meshguard/observe"
)

// Config configures a Graph.
type Config struct {
	// HealthCheckInterval is the base cadence of the probe loop.
	// Default: 30 seconds
	HealthCheckInterval time.Duration

	// FailureThreshold is how many consecutive probe failures mark a
	// node unhealthy.
	// Default: 3
	FailureThreshold int

	// RecoveryThreshold is how many consecutive probe successes mark an
	// unhealthy node healthy again.
	// Default: 2
	RecoveryThreshold int

	// CascadeDelay is how long a health change waits before propagating
	// to dependents, so a flapping node does not spray state changes
	// through the graph.
	// Default: 5 seconds
	CascadeDelay time.Duration

	// MaxRetryInterval caps the probe backoff for nodes that stay
	// unhealthy. Raised to HealthCheckInterval when set below it.
	// Default: 60 seconds
	MaxRetryInterval time.Duration

	// Logger receives probe failures and health transitions.
	// Default: discard
	Logger observe.Logger

	// Sink receives health gauges and cascade counters.
	// Default: no emission
	Sink observe.Sink
}

// Graph tracks service-to-dependency edges and propagates health
// changes along them. Nodes are stable service IDs, so cyclic
// dependencies are representable; propagation stops as soon as a
// node's status is already the derived one.
//
// Health flows in after a cascade delay: an unhealthy critical
// dependency marks its dependents unhealthy, an unhealthy required
// dependency marks them degraded, and optional dependencies never
// cascade. Recovery propagates the same way once the dependency is
// healthy again.
type Graph struct {
	config Config

	mu         sync.Mutex
	deps       map[string]map[string]Dependency
	dependents map[string]map[string]struct{}
	health     map[string]health.Status
	cascades   map[string]*cascade
	recovery   map[string]*recoveryState
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}

	agg     *health.Aggregator
	group   singleflight.Group
	probeWG sync.WaitGroup
}

// cascade is one pending propagation. Scheduling a new cascade for the
// same node replaces the pending one, so the map entry's identity also
// tells a fired timer whether it was superseded.
type cascade struct {
	timer *time.Timer
}

// New creates a Graph.
func New(config Config) *Graph {
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = 30 * time.Second
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.RecoveryThreshold <= 0 {
		config.RecoveryThreshold = 2
	}
	if config.CascadeDelay <= 0 {
		config.CascadeDelay = 5 * time.Second
	}
	if config.MaxRetryInterval <= 0 {
		config.MaxRetryInterval = 60 * time.Second
	}
	if config.MaxRetryInterval < config.HealthCheckInterval {
		config.MaxRetryInterval = config.HealthCheckInterval
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}

	return &Graph{
		config:     config,
		deps:       make(map[string]map[string]Dependency),
		dependents: make(map[string]map[string]struct{}),
		health:     make(map[string]health.Status),
		cascades:   make(map[string]*cascade),
		recovery:   make(map[string]*recoveryState),
		agg:        health.NewAggregator(),
	}
}

// AddDependency records that service depends on dependencyID. Adding
// an edge that already exists replaces its kind and weight. A zero
// weight means the default weight of one.
func (g *Graph) AddDependency(service, dependencyID string, kind Kind, weight float64) error {
	if service == "" || dependencyID == "" {
		return ErrEmptyID
	}
	if service == dependencyID {
		return ErrSelfDependency
	}
	if kind < KindCritical || kind > KindOptional {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	if weight < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	if weight == 0 {
		weight = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deps[service] == nil {
		g.deps[service] = make(map[string]Dependency)
	}
	g.deps[service][dependencyID] = Dependency{ID: dependencyID, Kind: kind, Weight: weight}

	if g.dependents[dependencyID] == nil {
		g.dependents[dependencyID] = make(map[string]struct{})
	}
	g.dependents[dependencyID][service] = struct{}{}
	return nil
}

// RemoveDependency deletes the edge. Removing an unknown edge is a
// no-op.
func (g *Graph) RemoveDependency(service, dependencyID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.deps[service], dependencyID)
	if len(g.deps[service]) == 0 {
		delete(g.deps, service)
	}
	if set := g.dependents[dependencyID]; set != nil {
		delete(set, service)
		if len(set) == 0 {
			delete(g.dependents, dependencyID)
		}
	}
}

// SetHealth caches a node's status and schedules propagation to its
// dependents after the cascade delay. Setting the status a node
// already has is a no-op, which is also what stops propagation from
// circling a cyclic graph forever.
func (g *Graph) SetHealth(id string, status health.Status) {
	if id == "" {
		return
	}

	g.mu.Lock()
	if g.healthLocked(id) == status {
		g.mu.Unlock()
		return
	}
	g.health[id] = status
	g.scheduleCascadeLocked(id)
	g.mu.Unlock()

	g.config.Sink.Gauge(context.Background(), "mesh.depgraph.health", float64(status),
		observe.Tag{Key: "service", Value: id})
}

// Health returns a node's cached status. Unknown nodes are healthy.
func (g *Graph) Health(id string) health.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.healthLocked(id)
}

// DependencySatisfied reports whether one edge's requirement holds: a
// critical dependency must be healthy, a required one may be degraded,
// and an optional one always satisfies. Unknown edges are satisfied.
func (g *Graph) DependencySatisfied(service, dependencyID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	dep, ok := g.deps[service][dependencyID]
	if !ok {
		return true
	}
	switch dep.Kind {
	case KindCritical:
		return g.healthLocked(dependencyID) == health.StatusHealthy
	case KindRequired:
		return g.healthLocked(dependencyID) != health.StatusUnhealthy
	default:
		return true
	}
}

// Dependents returns the services that depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.dependents[id]))
	for service := range g.dependents[id] {
		out = append(out, service)
	}
	sort.Strings(out)
	return out
}

// DependenciesOf returns the edges of a service, sorted by dependency
// id.
func (g *Graph) DependenciesOf(service string) []Dependency {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Dependency, 0, len(g.deps[service]))
	for _, dep := range g.deps[service] {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Graph) healthLocked(id string) health.Status {
	if status, ok := g.health[id]; ok {
		return status
	}
	return health.StatusHealthy
}

// scheduleCascadeLocked arms the propagation timer for id, replacing
// any cascade already pending for it.
func (g *Graph) scheduleCascadeLocked(id string) {
	if len(g.dependents[id]) == 0 {
		return
	}
	if prior, ok := g.cascades[id]; ok {
		prior.timer.Stop()
	}
	c := &cascade{}
	c.timer = time.AfterFunc(g.config.CascadeDelay, func() { g.propagate(id, c) })
	g.cascades[id] = c
}

// propagate applies one fired cascade: every direct dependent is moved
// to the status derived from its edges, and each dependent that
// changed schedules its own cascade in turn.
func (g *Graph) propagate(id string, c *cascade) {
	type shift struct {
		service string
		status  health.Status
	}
	var shifts []shift

	g.mu.Lock()
	if g.cascades[id] != c {
		// Superseded or stopped while the timer was in flight.
		g.mu.Unlock()
		return
	}
	delete(g.cascades, id)
	for service := range g.dependents[id] {
		derived := g.derivedLocked(service)
		if derived == g.healthLocked(service) {
			continue
		}
		g.health[service] = derived
		g.scheduleCascadeLocked(service)
		shifts = append(shifts, shift{service: service, status: derived})
	}
	g.mu.Unlock()

	ctx := context.Background()
	for _, s := range shifts {
		g.config.Logger.Info(ctx, "dependency health cascaded",
			observe.Field{Key: "service", Value: s.service},
			observe.Field{Key: "dependency", Value: id},
			observe.Field{Key: "status", Value: s.status.String()},
		)
		g.config.Sink.Gauge(ctx, "mesh.depgraph.health", float64(s.status),
			observe.Tag{Key: "service", Value: s.service})
		g.config.Sink.Increment(ctx, "mesh.depgraph.cascade",
			observe.Tag{Key: "service", Value: s.service},
			observe.Tag{Key: "dependency", Value: id})
	}
}

// derivedLocked computes a service's health from its edges: an
// unhealthy critical dependency is fatal, a degraded critical or
// unhealthy required dependency degrades the service, and optional
// dependencies never count.
func (g *Graph) derivedLocked(service string) health.Status {
	status := health.StatusHealthy
	for id, dep := range g.deps[service] {
		depStatus := g.healthLocked(id)
		switch dep.Kind {
		case KindCritical:
			if depStatus == health.StatusUnhealthy {
				return health.StatusUnhealthy
			}
			if depStatus == health.StatusDegraded {
				status = health.Worst(status, health.StatusDegraded)
			}
		case KindRequired:
			if depStatus == health.StatusUnhealthy {
				status = health.Worst(status, health.StatusDegraded)
			}
		}
	}
	return status
}
