package depgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/meshguard/health"
	"github.com/jonwraymond/meshguard/observe"
)

// recoveryState is one node's probe bookkeeping: consecutive outcome
// counters and the backoff that slows probing while the node stays
// down.
type recoveryState struct {
	failures  int
	successes int
	interval  time.Duration
	next      time.Time
}

// RegisterChecker adds a health probe for a node. The loop polls it at
// the configured interval once Start has run.
func (g *Graph) RegisterChecker(checker health.Checker) {
	g.agg.Register(checker.Name(), checker)
}

// UnregisterChecker removes a node's health probe and its probe state.
func (g *Graph) UnregisterChecker(name string) {
	g.agg.Unregister(name)

	g.mu.Lock()
	delete(g.recovery, name)
	g.mu.Unlock()
}

// Start launches the background probe loop. The loop runs until Stop
// is called or ctx is cancelled.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	g.running = true
	g.cancel = cancel
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go g.loop(ctx, done)
	return nil
}

// Stop cancels pending cascades and halts the probe loop, blocking
// until the loop has exited. It is safe to call without a prior Start.
func (g *Graph) Stop() {
	g.mu.Lock()
	for id, c := range g.cascades {
		c.timer.Stop()
		delete(g.cascades, id)
	}
	running := g.running
	g.running = false
	cancel := g.cancel
	done := g.done
	g.mu.Unlock()

	if !running {
		return
	}
	cancel()
	<-done
	g.probeWG.Wait()
}

func (g *Graph) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.config.HealthCheckInterval)
	defer ticker.Stop()

	g.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep(ctx)
		}
	}
}

// sweep probes every registered checker that is due. Overlapping
// probes of the same node collapse into one, so a slow check never
// piles up behind itself.
func (g *Graph) sweep(ctx context.Context) {
	now := time.Now()
	for _, name := range g.agg.CheckerNames() {
		g.mu.Lock()
		state := g.recovery[name]
		if state == nil {
			state = &recoveryState{interval: g.config.HealthCheckInterval}
			g.recovery[name] = state
		}
		due := !state.next.After(now)
		g.mu.Unlock()
		if !due {
			continue
		}

		g.probeWG.Add(1)
		go func(name string) {
			defer g.probeWG.Done()
			g.group.Do(name, func() (any, error) {
				defer func() {
					if r := recover(); r != nil {
						g.config.Logger.Error(ctx, "health probe panicked",
							observe.Field{Key: "dependency", Value: name},
							observe.Field{Key: "panic", Value: fmt.Sprint(r)},
						)
					}
				}()

				result, err := g.agg.Check(ctx, name)
				if err != nil {
					// Unregistered mid-sweep.
					return nil, nil
				}
				g.applyProbe(ctx, name, result)
				return nil, nil
			})
		}(name)
	}
}

// applyProbe folds one probe result into the node's consecutive
// counters, flips the cached status when a threshold is crossed, and
// reschedules the next probe.
func (g *Graph) applyProbe(ctx context.Context, name string, result health.Result) {
	var (
		status  health.Status
		changed bool
	)

	g.mu.Lock()
	state := g.recovery[name]
	if state == nil {
		g.mu.Unlock()
		return
	}
	current := g.healthLocked(name)
	switch result.Status {
	case health.StatusHealthy:
		state.failures = 0
		state.successes++
		state.interval = g.config.HealthCheckInterval
		if state.successes >= g.config.RecoveryThreshold && current != health.StatusHealthy {
			status, changed = health.StatusHealthy, true
		}
	case health.StatusDegraded:
		state.successes = 0
		state.interval = g.config.HealthCheckInterval
		if current != health.StatusDegraded {
			status, changed = health.StatusDegraded, true
		}
	default:
		state.successes = 0
		state.failures++
		if state.failures >= g.config.FailureThreshold {
			if current != health.StatusUnhealthy {
				status, changed = health.StatusUnhealthy, true
			}
			if next := state.interval * 2; next <= g.config.MaxRetryInterval {
				state.interval = next
			} else {
				state.interval = g.config.MaxRetryInterval
			}
		}
	}
	state.next = time.Now().Add(state.interval)
	g.mu.Unlock()

	if !changed {
		return
	}

	fields := []observe.Field{
		{Key: "dependency", Value: name},
		{Key: "status", Value: status.String()},
	}
	if result.Error != nil {
		fields = append(fields, observe.Field{Key: "error", Value: result.Error.Error()})
	}
	g.config.Logger.Info(ctx, "dependency health changed", fields...)

	g.SetHealth(name, status)
}
