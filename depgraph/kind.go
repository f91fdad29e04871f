package depgraph

import (
	"fmt"
	"strings"
)

// Kind classifies how strongly a service needs a dependency.
type Kind int

const (
	// KindCritical dependencies must be healthy for the dependent to
	// function at all.
	KindCritical Kind = iota

	// KindRequired dependencies may degrade the dependent but never
	// take it down.
	KindRequired

	// KindOptional dependencies never affect the dependent's health.
	KindOptional
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCritical:
		return "critical"
	case KindRequired:
		return "required"
	case KindOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name to its Kind value.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "critical":
		return KindCritical, nil
	case "required":
		return KindRequired, nil
	case "optional":
		return KindOptional, nil
	default:
		return KindCritical, fmt.Errorf("depgraph: unknown dependency kind %q", s)
	}
}

// Dependency is one edge in the graph, read from the dependent's side.
type Dependency struct {
	// ID names the upstream service.
	ID string

	// Kind is how strongly the dependent needs it.
	Kind Kind

	// Weight is the relative importance among edges of the same kind.
	Weight float64
}
