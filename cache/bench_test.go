package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkMemoryCache_Get_Hit measures cache hit performance.
func BenchmarkMemoryCache_Get_Hit(b *testing.B) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	_ = c.Set(ctx, "key", []byte("value"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, "key")
	}
}

// BenchmarkMemoryCache_Get_Miss measures cache miss performance.
func BenchmarkMemoryCache_Get_Miss(b *testing.B) {
	c := NewMemoryCache(MemoryConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, "missing")
	}
}

// BenchmarkMemoryCache_Set measures write performance under the bound.
func BenchmarkMemoryCache_Set(b *testing.B) {
	c := NewMemoryCache(MemoryConfig{MaxEntries: 4096})
	ctx := context.Background()
	value := []byte(`{"status":"ok"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i%8192), value, time.Hour)
	}
}

// BenchmarkDefaultKeyer measures key derivation cost.
func BenchmarkDefaultKeyer(b *testing.B) {
	keyer := NewDefaultKeyer()
	payload := map[string]any{"order": 42, "currency": "EUR", "items": []any{1, 2, 3}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("payments", payload)
	}
}
