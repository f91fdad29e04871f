package recovery

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewGradual_Defaults(t *testing.T) {
	g, err := NewGradual(GradualConfig{})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	if g.config.BaseRate != 0.1 {
		t.Errorf("BaseRate = %v, want 0.1", g.config.BaseRate)
	}
	if g.config.Step != 0.1 {
		t.Errorf("Step = %v, want 0.1", g.config.Step)
	}
	if g.config.WindowSuccesses != 5 {
		t.Errorf("WindowSuccesses = %d, want 5", g.config.WindowSuccesses)
	}
	if g.config.BaseDelay != 0 {
		t.Errorf("BaseDelay = %v, want 0", g.config.BaseDelay)
	}
	if g.config.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", g.config.Threshold)
	}
	if g.config.RecoveryThreshold != 0.3 {
		t.Errorf("RecoveryThreshold = %v, want 0.3", g.config.RecoveryThreshold)
	}
}

func TestNewGradual_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  GradualConfig
		wantErr error
	}{
		{
			name:    "base rate above 1",
			config:  GradualConfig{BaseRate: 1.5},
			wantErr: ErrInvalidRate,
		},
		{
			name:    "negative step",
			config:  GradualConfig{Step: -0.1},
			wantErr: ErrInvalidRate,
		},
		{
			name:    "threshold above 1",
			config:  GradualConfig{Threshold: 2},
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "recovery threshold above ambient",
			config:  GradualConfig{Threshold: 0.5, RecoveryThreshold: 0.8},
			wantErr: ErrInvalidThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGradual(tt.config)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewGradual() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGradual_RateNonDecreasingAcrossSuccesses(t *testing.T) {
	g, err := NewGradual(GradualConfig{WindowSuccesses: 3})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	last := g.AllowRate()
	for i := 1; i <= 12; i++ {
		g.OnSuccess(i)
		rate := g.AllowRate()
		if rate < last {
			t.Fatalf("AllowRate() = %v after %d successes, decreased from %v", rate, i, last)
		}
		last = rate
	}

	// 12 successes with a window of 3 complete four windows.
	if want := 0.1 + 4*0.1; !approxEqual(last, want) {
		t.Errorf("AllowRate() = %v, want %v", last, want)
	}
}

func TestGradual_FailureResetsToBase(t *testing.T) {
	g, err := NewGradual(GradualConfig{WindowSuccesses: 1})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	for i := 1; i <= 5; i++ {
		g.OnSuccess(i)
	}
	if rate := g.AllowRate(); !approxEqual(rate, 0.6) {
		t.Fatalf("AllowRate() = %v before failure, want 0.6", rate)
	}

	if !g.OnFailure(1) {
		t.Error("OnFailure() = false, want reset")
	}
	if rate := g.AllowRate(); rate != 0.1 {
		t.Errorf("AllowRate() = %v after failure, want base 0.1", rate)
	}
}

func TestGradual_FullRecovery(t *testing.T) {
	g, err := NewGradual(GradualConfig{BaseRate: 0.25, Step: 0.25, WindowSuccesses: 1})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	recovered := false
	var steps int
	for i := 1; i <= 10 && !recovered; i++ {
		recovered = g.OnSuccess(i)
		steps = i
	}

	if !recovered {
		t.Fatal("OnSuccess() never reported full recovery")
	}
	if steps != 3 {
		t.Errorf("recovered after %d successes, want 3", steps)
	}
	if g.AllowRate() != 1 {
		t.Errorf("AllowRate() = %v, want 1", g.AllowRate())
	}
}

func TestGradual_TripThresholdTightensDuringRecovery(t *testing.T) {
	g, err := NewGradual(GradualConfig{})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	if got := g.TripThreshold(); got != 0.5 {
		t.Errorf("TripThreshold() = %v before recovery, want ambient 0.5", got)
	}

	g.ShouldAttempt(context.Background(), 0, time.Time{})

	if got := g.TripThreshold(); got != 0.3 {
		t.Errorf("TripThreshold() = %v during recovery, want 0.3", got)
	}

	g.OnFailure(1)

	if got := g.TripThreshold(); got != 0.5 {
		t.Errorf("TripThreshold() = %v after reset, want ambient 0.5", got)
	}

	// A completed recovery also returns the threshold to ambient.
	g.ShouldAttempt(context.Background(), 0, time.Time{})
	recovered := false
	for i := 1; i <= 60 && !recovered; i++ {
		recovered = g.OnSuccess(i)
	}
	if !recovered {
		t.Fatal("OnSuccess() never reported full recovery")
	}
	if got := g.TripThreshold(); got != 0.5 {
		t.Errorf("TripThreshold() = %v after full recovery, want ambient 0.5", got)
	}
}

func TestGradual_BaseDelayGate(t *testing.T) {
	g, err := NewGradual(GradualConfig{BaseDelay: time.Minute})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	lastFailure := now

	if g.ShouldAttempt(context.Background(), 0, lastFailure) {
		t.Error("ShouldAttempt() = true before BaseDelay elapsed")
	}

	now = now.Add(time.Minute)

	if !g.ShouldAttempt(context.Background(), 0, lastFailure) {
		t.Error("ShouldAttempt() = false after BaseDelay elapsed")
	}
}

func TestGradual_DefaultAttemptsImmediately(t *testing.T) {
	g, err := NewGradual(GradualConfig{})
	if err != nil {
		t.Fatalf("NewGradual() error = %v", err)
	}

	if !g.ShouldAttempt(context.Background(), 0, time.Now()) {
		t.Error("ShouldAttempt() = false with zero BaseDelay")
	}
}
