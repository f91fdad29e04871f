package recovery_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/meshguard/recovery"
)

func ExampleNewGradual() {
	strategy, err := recovery.NewGradual(recovery.GradualConfig{
		BaseRate:        0.25,
		Step:            0.25,
		WindowSuccesses: 2,
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("base rate:", strategy.AllowRate())

	strategy.OnSuccess(1)
	strategy.OnSuccess(2)
	fmt.Println("after one good window:", strategy.AllowRate())

	strategy.OnFailure(1)
	fmt.Println("after a failure:", strategy.AllowRate())
	// Output:
	// base rate: 0.25
	// after one good window: 0.5
	// after a failure: 0.25
}

func ExampleNewPartial() {
	strategy, err := recovery.NewPartial(recovery.PartialConfig{
		Features: map[string]recovery.Feature{
			"checkout":        {Priority: 9, Critical: true},
			"search":          {Priority: 5},
			"recommendations": {Priority: 2},
		},
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	strategy.Reset()
	fmt.Println("after trip:", strategy.EnabledFeatures())

	strategy.OnSuccess(1)
	fmt.Println("first good probe:", strategy.EnabledFeatures())
	// Output:
	// after trip: [checkout]
	// first good probe: [checkout search]
}

type memoryGauges struct{}

func (memoryGauges) Sample(context.Context) (map[string]float64, error) {
	return map[string]float64{"memory_usage": 0.42}, nil
}

func ExampleNewAdaptive() {
	strategy, err := recovery.NewAdaptive(recovery.AdaptiveConfig{
		Gauges:    memoryGauges{},
		Bounds:    map[string]float64{"memory_usage": 0.8},
		BaseDelay: time.Second,
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	ok := strategy.ShouldAttempt(context.Background(), 0, time.Time{})
	fmt.Println("probe allowed:", ok)
	// Output:
	// probe allowed: true
}
