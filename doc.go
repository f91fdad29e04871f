// Package meshguard guards outbound service calls with adaptive
// resilience.
//
// A Client holds one set of protection components per target service
// and routes every call through them. The components observe call
// outcomes and adjust themselves: the circuit breaker trips on
// failure clusters, the timeout tracks the latency distribution, the
// rate limiter backs off when errors rise, and the fallback chain
// degrades to cached or alternate values when the target is down.
//
// # Components
//
// Each target service gets its own instance of:
//
//   - Circuit Breaker: Trips after a failure threshold over a sliding
//     window and recovers through a half-open probe phase.
//
//   - Adaptive Timeout: Computes per-call deadlines from observed
//     latency percentiles instead of a fixed number.
//
//   - Adaptive Rate Limiter: Scales its rate between a floor and a
//     ceiling based on the observed error rate.
//
//   - Priority Tiers: Admits calls by tier, with reserved slots and a
//     load-shedding floor shared across targets.
//
//   - Fallback Chain: Serves stale cached values or ordered alternate
//     handlers when the call fails, tagging the result as degraded.
//
//   - Dependency Graph: Tracks target health and cascades degradation
//     to dependents.
//
// # Usage
//
//	client, err := meshguard.New(meshguard.Config{
//	    Service: "checkout",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	res, err := client.Do(ctx, "payments",
//	    func(ctx context.Context) ([]byte, error) {
//	        return fetchQuote(ctx)
//	    },
//	    meshguard.WithTier(priority.TierHigh),
//	    meshguard.WithCacheKey("quote:usd"),
//	)
//	if err != nil {
//	    return err
//	}
//	if res.Degraded {
//	    // Stale or alternate value; still usable.
//	}
//	use(res.Value)
//
// Calls fail with ErrCircuitOpen, ErrAdmissionRejected, or ErrTimeout
// when a protection gate declines, or with the operation's own error.
// Anything else stays internal.
package meshguard
