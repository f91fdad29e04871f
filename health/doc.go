// Package health provides health checking primitives for mesh dependencies.
//
// This package implements the shared health vocabulary used across the
// client: the Status type, the Checker interface for probing an upstream,
// an aggregator that fans probes out in parallel, and HTTP handlers for
// exposing the resulting dependency panel.
//
// # Core Concepts
//
// A Checker is any component that can report the health of a dependency.
// The Status type represents the health state: Healthy, Degraded, or
// Unhealthy. Statuses are ordered by severity; Worst picks the more
// severe of two, which is how composite results collapse.
//
// # Basic Usage
//
//	// Probe a dependency's readiness endpoint
//	probe, err := health.NewHTTPChecker("billing", health.HTTPCheckerConfig{
//	    URL: "http://billing.internal/readyz",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result := probe.Check(ctx)
//	if result.Status == health.StatusUnhealthy {
//	    log.Printf("billing down: %s", result.Message)
//	}
//
// # Aggregating Probes
//
// Use Aggregator to combine per-dependency probes into a composite check:
//
//	agg := health.NewAggregator()
//	agg.Register("billing", billingProbe)
//	agg.Register("ledger", ledgerProbe)
//	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// # HTTP Endpoints
//
// The package provides HTTP handlers for common health check patterns:
//
//	// Liveness probe (for Kubernetes)
//	http.Handle("/healthz", health.LivenessHandler())
//
//	// Readiness probe over all registered dependencies
//	http.Handle("/readyz", health.ReadinessHandler(aggregator))
//
//	// Detailed dependency panel
//	http.Handle("/health", health.DetailedHandler(aggregator))
package health
