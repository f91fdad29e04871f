package depgraph

import "errors"

// Sentinel errors for graph mutation and loop control.
var (
	// ErrEmptyID is returned when a service or dependency id is blank.
	ErrEmptyID = errors.New("depgraph: empty service id")

	// ErrSelfDependency is returned when a service is added as its own
	// dependency.
	ErrSelfDependency = errors.New("depgraph: service cannot depend on itself")

	// ErrUnknownKind is returned for kinds outside the known set.
	ErrUnknownKind = errors.New("depgraph: unknown dependency kind")

	// ErrInvalidWeight is returned for a negative edge weight.
	ErrInvalidWeight = errors.New("depgraph: invalid weight")

	// ErrAlreadyRunning is returned when Start is called on a live
	// health loop.
	ErrAlreadyRunning = errors.New("depgraph: health loop already running")
)
