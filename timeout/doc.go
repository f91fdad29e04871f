// Package timeout computes per-service call timeouts from recent
// latency.
//
// An Adaptive timeout keeps a sliding window of call latencies and
// outcomes and derives the budget for the next call from it, using a
// latency percentile, a success-rate-widened mean, or the larger of
// the two. Every computed value is clamped to configured bounds so a
// noisy window can never produce an unusable budget.
//
//	at, err := timeout.New(timeout.Config{Service: "billing"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = at.Execute(ctx, func(ctx context.Context) error {
//		return callBilling(ctx)
//	})
//
// Execute records the call's latency and outcome automatically.
// Callers that manage their own deadlines can instead read Timeout and
// feed results back through Record.
package timeout
