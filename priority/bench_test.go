package priority

import (
	"context"
	"testing"

	"github.com/jonwraymond/meshguard/breaker"
)

func BenchmarkStartFinish(b *testing.B) {
	m, err := New(Config{Service: "bench"})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := m.Start(ctx, TierNormal); err == nil {
			m.Finish(TierNormal)
		}
	}
}

func BenchmarkCanExecute(b *testing.B) {
	m, err := New(Config{Service: "bench", MinTier: TierLow})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.CanExecute(TierNormal, breaker.StateClosed)
	}
}

func BenchmarkStartFinish_Parallel(b *testing.B) {
	m, err := New(Config{Service: "bench", ReservedSlots: map[Tier]int{TierNormal: 64}})
	if err != nil {
		b.Fatal(err)
	}

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if err := m.Start(ctx, TierNormal); err == nil {
				m.Finish(TierNormal)
			}
		}
	})
}
