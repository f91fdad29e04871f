package recovery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Feature describes one named capability governed by a Partial
// strategy.
type Feature struct {
	// Priority orders recovery: higher priorities are re-enabled first
	// and shed last.
	Priority int

	// Critical features are never shed.
	Critical bool
}

// PartialConfig configures a Partial strategy.
type PartialConfig struct {
	// Features maps feature names to their priorities. At least one
	// feature is required.
	Features map[string]Feature

	// BaseDelay must elapse after the last failure before a probe may
	// start. Default: 0 (probe as soon as the circuit permits)
	BaseDelay time.Duration

	// Threshold is the error-rate threshold for opening the circuit.
	// Default: 0.5
	Threshold float64
}

// Partial recovers feature-by-feature: each successful probe re-enables
// the highest-priority disabled feature, each failure sheds the
// lowest-priority enabled non-critical one. The service is fully
// recovered when every feature is enabled.
//
// Features sharing a priority are ordered by name, so recovery order is
// deterministic.
type Partial struct {
	config PartialConfig

	mu      sync.Mutex
	enabled map[string]bool

	now func() time.Time
}

// NewPartial creates a Partial strategy with every feature enabled.
func NewPartial(config PartialConfig) (*Partial, error) {
	if len(config.Features) == 0 {
		return nil, ErrNoFeatures
	}
	if config.Threshold == 0 {
		config.Threshold = 0.5
	}
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, ErrInvalidThreshold
	}

	enabled := make(map[string]bool, len(config.Features))
	for name := range config.Features {
		enabled[name] = true
	}

	return &Partial{
		config:  config,
		enabled: enabled,
		now:     time.Now,
	}, nil
}

// ShouldAttempt reports whether BaseDelay has elapsed since the last
// failure.
func (p *Partial) ShouldAttempt(_ context.Context, _ int, lastFailure time.Time) bool {
	if lastFailure.IsZero() {
		return true
	}
	return p.now().Sub(lastFailure) >= p.config.BaseDelay
}

// AllowRate returns the enabled fraction of the feature set.
func (p *Partial) AllowRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var on int
	for _, e := range p.enabled {
		if e {
			on++
		}
	}
	return float64(on) / float64(len(p.config.Features))
}

// OnSuccess re-enables the highest-priority disabled feature and
// reports whether every feature is now enabled.
func (p *Partial) OnSuccess(int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name, ok := p.pickLocked(false, false); ok {
		p.enabled[name] = true
	}
	return p.allEnabledLocked()
}

// OnFailure sheds the lowest-priority enabled non-critical feature and
// reports whether only critical features remain, the fully-shed base
// state.
func (p *Partial) OnFailure(int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name, ok := p.pickLocked(true, true); ok {
		p.enabled[name] = false
	}
	_, more := p.pickLocked(true, true)
	return !more
}

// TripThreshold returns the ambient threshold.
func (p *Partial) TripThreshold() float64 {
	return p.config.Threshold
}

// Reset sheds every non-critical feature, the state a fresh trip
// recovers from.
func (p *Partial) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, f := range p.config.Features {
		p.enabled[name] = f.Critical
	}
}

// FeatureEnabled reports whether the named feature is currently
// enabled. Unknown features are disabled.
func (p *Partial) FeatureEnabled(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[name]
}

// EnabledFeatures returns the enabled feature names sorted by priority,
// highest first, names breaking ties.
func (p *Partial) EnabledFeatures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.enabled))
	for name, e := range p.enabled {
		if e {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := p.config.Features[names[i]].Priority, p.config.Features[names[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})
	return names
}

// pickLocked selects the next feature to flip: the lowest-priority
// enabled one when shedding, the highest-priority disabled one when
// recovering. Ties go to the lexicographically smallest name.
func (p *Partial) pickLocked(enabled, skipCritical bool) (string, bool) {
	var (
		best  string
		found bool
	)
	for name, f := range p.config.Features {
		if p.enabled[name] != enabled {
			continue
		}
		if skipCritical && f.Critical {
			continue
		}
		if !found {
			best, found = name, true
			continue
		}
		bp := p.config.Features[best].Priority
		if enabled {
			// Shedding: prefer the lowest priority.
			if f.Priority < bp || (f.Priority == bp && name < best) {
				best = name
			}
		} else {
			// Recovering: prefer the highest priority.
			if f.Priority > bp || (f.Priority == bp && name < best) {
				best = name
			}
		}
	}
	return best, found
}

func (p *Partial) allEnabledLocked() bool {
	for _, e := range p.enabled {
		if !e {
			return false
		}
	}
	return true
}
