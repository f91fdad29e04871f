// Package breaker implements a per-service circuit breaker whose
// recovery behavior is pluggable.
//
// The breaker trips on consecutive failures or on a windowed error
// rate crossing the strategy's threshold. While open, the strategy's
// probe schedule decides when the first request may try again; while
// half-open, the strategy's allow rate meters traffic back in until it
// reports full recovery.
//
//	b, _ := breaker.New(breaker.Config{Service: "payments"})
//	if !b.Allow(ctx) {
//		return breaker.ErrCircuitOpen
//	}
//	start := time.Now()
//	err := call(ctx)
//	if err != nil {
//		b.RecordFailure(ctx, time.Since(start))
//	} else {
//		b.RecordSuccess(ctx, time.Since(start))
//	}
//
// A StateStore replicates transitions so every instance of a client
// fails fast once one of them trips. Store operations are bounded by a
// short timeout and fall back to local state on any error.
package breaker
