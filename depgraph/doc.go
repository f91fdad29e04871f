// Package depgraph propagates health through a graph of
// service-to-dependency edges.
//
// Edges carry a kind: critical dependencies must be healthy for the
// dependent to function, required ones tolerate degradation, and
// optional ones never cascade. A health change waits out a cascade
// delay before flowing to dependents, so a flapping node cannot spray
// state changes through the mesh, and recovery flows back the same
// way:
//
//	g := depgraph.New(depgraph.Config{CascadeDelay: 2 * time.Second})
//	g.AddDependency("checkout", "payments", depgraph.KindCritical, 1)
//	g.SetHealth("payments", health.StatusUnhealthy)
//	// two seconds later Health("checkout") is unhealthy too
//
// A background loop started with Start polls registered
// health.Checker probes, marks nodes after consecutive-failure and
// consecutive-success thresholds, and backs probing off while a node
// stays down.
package depgraph
