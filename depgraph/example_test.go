package depgraph_test

import (
	"fmt"
	"time"

	"github.com/jonwraymond/meshguard/depgraph"
	"github.com/jonwraymond/meshguard/health"
)

func ExampleGraph() {
	g := depgraph.New(depgraph.Config{CascadeDelay: 10 * time.Millisecond})
	defer g.Stop()

	g.AddDependency("checkout", "payments", depgraph.KindCritical, 1)
	g.AddDependency("checkout", "ledger", depgraph.KindRequired, 1)

	g.SetHealth("payments", health.StatusUnhealthy)
	time.Sleep(100 * time.Millisecond)

	fmt.Println("checkout:", g.Health("checkout"))
	fmt.Println("payments satisfied:", g.DependencySatisfied("checkout", "payments"))
	fmt.Println("ledger satisfied:", g.DependencySatisfied("checkout", "ledger"))
	// Output:
	// checkout: unhealthy
	// payments satisfied: false
	// ledger satisfied: true
}

func ExampleGraph_Dependents() {
	g := depgraph.New(depgraph.Config{})
	defer g.Stop()

	g.AddDependency("checkout", "payments", depgraph.KindCritical, 1)
	g.AddDependency("billing", "payments", depgraph.KindRequired, 1)

	fmt.Println(g.Dependents("payments"))
	// Output:
	// [billing checkout]
}
