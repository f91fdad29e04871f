// Package fallback degrades failed calls instead of failing them.
//
// A Chain wraps a primary operation. Successes pass through untouched
// (optionally written to a cache); failures are served from the cache
// when a key was supplied, then from an ordered list of handlers. A
// degraded value is flagged on the Result so callers can tell fresh
// data from stale:
//
//	chain := fallback.New(fallback.Config{
//		Service: "payments",
//		Cache:   store,
//		Handlers: []fallback.Handler{
//			func(ctx context.Context) ([]byte, error) {
//				return secondary.Quote(ctx)
//			},
//		},
//	})
//
//	res, err := chain.Execute(ctx, fetchQuote, fallback.WithCacheKey(key))
//	if res.Degraded {
//		// stale or alternate data
//	}
//
// When the cache and every handler fail, Execute returns the primary
// operation's error so the original cause is what callers see.
package fallback
