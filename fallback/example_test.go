package fallback_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/meshguard/cache"
	"github.com/jonwraymond/meshguard/fallback"
)

func ExampleChain_Execute() {
	chain := fallback.New(fallback.Config{
		Service: "payments",
		Handlers: []fallback.Handler{
			func(ctx context.Context) ([]byte, error) {
				return []byte(`{"quote":"last-known"}`), nil
			},
		},
	})

	primary := func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	}

	res, err := chain.Execute(context.Background(), primary)
	fmt.Println("err:", err)
	fmt.Println("value:", string(res.Value))
	fmt.Println("degraded:", res.Degraded)
	// Output:
	// err: <nil>
	// value: {"quote":"last-known"}
	// degraded: true
}

func ExampleWithCacheKey() {
	store := cache.NewMemoryCache(cache.MemoryConfig{})
	chain := fallback.New(fallback.Config{Service: "payments", Cache: store})

	fresh := func(ctx context.Context) ([]byte, error) {
		return []byte(`{"quote":42}`), nil
	}
	down := func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	}

	key := "mesh:payments:quote"
	if _, err := chain.Execute(context.Background(), fresh, fallback.WithCacheKey(key), fallback.WithTTL(time.Minute)); err != nil {
		fmt.Println("unexpected:", err)
	}

	res, err := chain.Execute(context.Background(), down, fallback.WithCacheKey(key))
	fmt.Println("err:", err)
	fmt.Println("value:", string(res.Value))
	fmt.Println("fallback used:", res.FallbackUsed)
	// Output:
	// err: <nil>
	// value: {"quote":42}
	// fallback used: true
}
