package priority

import (
	"fmt"
	"strings"
)

// Tier orders requests by importance. Higher tiers keep working while
// lower ones are shed as the mesh degrades.
type Tier int

const (
	// TierBulk is background traffic, shed first under pressure.
	TierBulk Tier = iota

	// TierLow is deferrable traffic such as prefetching.
	TierLow

	// TierNormal is ordinary interactive traffic.
	TierNormal

	// TierHigh is latency-sensitive traffic that stays admitted while
	// a circuit probes recovery.
	TierHigh

	// TierCritical is never blocked, whatever the circuit state.
	TierCritical
)

// String returns the lowercase name of the tier.
func (t Tier) String() string {
	switch t {
	case TierBulk:
		return "bulk"
	case TierLow:
		return "low"
	case TierNormal:
		return "normal"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseTier converts a tier name to its Tier value.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(s) {
	case "bulk":
		return TierBulk, nil
	case "low":
		return TierLow, nil
	case "normal":
		return TierNormal, nil
	case "high":
		return TierHigh, nil
	case "critical":
		return TierCritical, nil
	default:
		return TierBulk, fmt.Errorf("priority: unknown tier %q", s)
	}
}
