package priority

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/meshguard/breaker"
	"github.com/jonwraymond/meshguard/observe"
)

// Config configures a Manager.
type Config struct {
	// Service tags emitted metrics.
	Service string

	// MinTier is the lowest tier admitted at all. Requests below it are
	// rejected outright; critical requests are exempt.
	// Default: TierBulk (admit every tier)
	MinTier Tier

	// ReservedSlots caps concurrently active requests per tier. Tiers
	// left out of the map use the default.
	// Default: 10 per tier
	ReservedSlots map[Tier]int

	// WaitTimeouts is how long Start queues behind a full tier before
	// giving up. Tiers left out of the map do not wait.
	// Default: no waiting
	WaitTimeouts map[Tier]time.Duration

	// Sink receives active-count gauges and rejection counters.
	// Default: no emission
	Sink observe.Sink
}

const defaultReservedSlots = 10

var allTiers = []Tier{TierBulk, TierLow, TierNormal, TierHigh, TierCritical}

// Manager reserves request slots per tier and gates admission on both
// tier and circuit state. When a tier is full, callers queue and are
// admitted oldest first as slots free. The minimum tier and the slot
// reservations are adjustable at runtime.
type Manager struct {
	config Config

	mu       sync.Mutex
	minTier  Tier
	reserved map[Tier]int
	active   map[Tier]int
	waiters  map[Tier][]chan struct{}
	rejected map[Tier]int64
}

// New creates a Manager from the given configuration.
func New(config Config) (*Manager, error) {
	if config.MinTier < TierBulk || config.MinTier > TierCritical {
		return nil, fmt.Errorf("%w: minimum %d", ErrInvalidTier, config.MinTier)
	}
	for tier, slots := range config.ReservedSlots {
		if tier < TierBulk || tier > TierCritical {
			return nil, fmt.Errorf("%w: %d in reserved slots", ErrInvalidTier, int(tier))
		}
		if slots < 0 {
			return nil, fmt.Errorf("%w: %d for %v", ErrInvalidSlots, slots, tier)
		}
	}
	for tier := range config.WaitTimeouts {
		if tier < TierBulk || tier > TierCritical {
			return nil, fmt.Errorf("%w: %d in wait timeouts", ErrInvalidTier, int(tier))
		}
	}
	if config.Sink == nil {
		config.Sink = observe.NopSink{}
	}

	reserved := make(map[Tier]int, len(allTiers))
	for _, tier := range allTiers {
		reserved[tier] = defaultReservedSlots
	}
	for tier, slots := range config.ReservedSlots {
		reserved[tier] = slots
	}

	return &Manager{
		config:   config,
		minTier:  config.MinTier,
		reserved: reserved,
		active:   make(map[Tier]int, len(allTiers)),
		waiters:  make(map[Tier][]chan struct{}, len(allTiers)),
		rejected: make(map[Tier]int64, len(allTiers)),
	}, nil
}

// CanExecute reports whether a request of the given tier would be
// admitted right now under the given circuit state. Critical requests
// always pass, even past a full reservation; tiers below the minimum
// never do. An open circuit blocks everything else, a half-open
// circuit blocks tiers below high, and otherwise the tier must have a
// reserved slot free.
func (m *Manager) CanExecute(tier Tier, state breaker.State) bool {
	if tier == TierCritical {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tier < m.minTier {
		return false
	}
	switch state {
	case breaker.StateOpen:
		return false
	case breaker.StateHalfOpen:
		if tier < TierHigh {
			return false
		}
	}
	return m.active[tier] < m.reserved[tier]
}

// Start claims a slot for one request, queueing up to the tier's wait
// budget when the tier is full. Critical requests are always admitted
// and may exceed their reservation. A nil return must be paired with
// Finish. Cancelling ctx abandons the wait.
func (m *Manager) Start(ctx context.Context, tier Tier) error {
	if tier < TierBulk || tier > TierCritical {
		return fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}

	m.mu.Lock()
	if tier != TierCritical && tier < m.minTier {
		m.mu.Unlock()
		m.bumpRejected(ctx, tier)
		return ErrRejected
	}
	if tier == TierCritical || (m.active[tier] < m.reserved[tier] && len(m.waiters[tier]) == 0) {
		m.active[tier]++
		active := m.active[tier]
		m.mu.Unlock()
		m.gaugeActive(ctx, tier, active)
		return nil
	}
	wait := m.config.WaitTimeouts[tier]
	if wait <= 0 {
		m.mu.Unlock()
		m.bumpRejected(ctx, tier)
		return ErrWaitTimeout
	}
	ready := make(chan struct{})
	m.waiters[tier] = append(m.waiters[tier], ready)
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-timer.C:
		if m.abandon(tier, ready) {
			m.bumpRejected(ctx, tier)
			return ErrWaitTimeout
		}
		// The slot arrived as the timer fired; keep it.
		return nil
	case <-ctx.Done():
		if !m.abandon(tier, ready) {
			// The slot arrived as the caller gave up; hand it back.
			m.Finish(tier)
		}
		return ctx.Err()
	}
}

// Finish releases the slot claimed by a successful Start, handing it
// to the oldest waiter if one is queued.
func (m *Manager) Finish(tier Tier) {
	if tier < TierBulk || tier > TierCritical {
		return
	}

	m.mu.Lock()
	if m.active[tier] > 0 {
		m.active[tier]--
	}
	m.admitLocked(tier)
	active := m.active[tier]
	m.mu.Unlock()

	m.gaugeActive(context.Background(), tier, active)
}

// SetMinTier adjusts the minimum admitted tier without restart.
func (m *Manager) SetMinTier(tier Tier) error {
	if tier < TierBulk || tier > TierCritical {
		return fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}

	m.mu.Lock()
	m.minTier = tier
	m.mu.Unlock()
	return nil
}

// SetReservedSlots adjusts one tier's slot reservation without
// restart. Growing a reservation admits queued waiters immediately;
// shrinking one lets excess active requests drain naturally.
func (m *Manager) SetReservedSlots(tier Tier, slots int) error {
	if tier < TierBulk || tier > TierCritical {
		return fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}
	if slots < 0 {
		return fmt.Errorf("%w: %d for %v", ErrInvalidSlots, slots, tier)
	}

	m.mu.Lock()
	m.reserved[tier] = slots
	m.admitLocked(tier)
	m.mu.Unlock()
	return nil
}

// TierMetrics describes one tier's admission state.
type TierMetrics struct {
	Active   int
	Reserved int
	Waiting  int
	Rejected int64
}

// Metrics contains admission statistics for every tier.
type Metrics struct {
	MinTier Tier
	Tiers   map[Tier]TierMetrics
}

// Metrics returns a snapshot of the admission state.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	tiers := make(map[Tier]TierMetrics, len(allTiers))
	for _, tier := range allTiers {
		tiers[tier] = TierMetrics{
			Active:   m.active[tier],
			Reserved: m.reserved[tier],
			Waiting:  len(m.waiters[tier]),
			Rejected: m.rejected[tier],
		}
	}
	return Metrics{MinTier: m.minTier, Tiers: tiers}
}

// admitLocked hands free slots to queued waiters, oldest first. It
// holds the invariant that waiters only queue while the tier is full.
func (m *Manager) admitLocked(tier Tier) {
	for m.active[tier] < m.reserved[tier] && len(m.waiters[tier]) > 0 {
		ready := m.waiters[tier][0]
		m.waiters[tier] = m.waiters[tier][1:]
		m.active[tier]++
		close(ready)
	}
}

// abandon removes a queued waiter. It reports false when the waiter
// was already admitted, meaning the caller owns a slot.
func (m *Manager) abandon(tier Tier, ready chan struct{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.waiters[tier]
	for i, w := range queue {
		if w == ready {
			m.waiters[tier] = append(queue[:i], queue[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) gaugeActive(ctx context.Context, tier Tier, active int) {
	m.config.Sink.Gauge(ctx, "mesh.priority.active", float64(active), m.tags(tier)...)
}

func (m *Manager) bumpRejected(ctx context.Context, tier Tier) {
	m.mu.Lock()
	m.rejected[tier]++
	m.mu.Unlock()

	m.config.Sink.Increment(ctx, "mesh.priority.rejected", m.tags(tier)...)
}

func (m *Manager) tags(tier Tier) []observe.Tag {
	return []observe.Tag{
		{Key: "service", Value: m.config.Service},
		{Key: "tier", Value: tier.String()},
	}
}
