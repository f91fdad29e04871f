// Package priority admits requests by importance tier when capacity
// or circuit state forces shedding.
//
// Each tier holds a reserved number of concurrent slots. A request
// claims a slot with Start and returns it with Finish:
//
//	mgr, err := priority.New(priority.Config{Service: "payments"})
//	if err != nil {
//		return err
//	}
//	if err := mgr.Start(ctx, priority.TierNormal); err != nil {
//		return err
//	}
//	defer mgr.Finish(priority.TierNormal)
//
// CanExecute combines the tier with the circuit state of the target
// service: critical traffic always passes, an open circuit blocks
// everything else, and a half-open circuit admits only high tiers
// while recovery is probed. The minimum admitted tier and the per-tier
// reservations can be retuned at runtime with SetMinTier and
// SetReservedSlots.
package priority
