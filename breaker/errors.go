package breaker

import "errors"

// Sentinel errors for circuit breaker operations.
var (
	// ErrCircuitOpen is returned when the circuit rejects a call.
	ErrCircuitOpen = errors.New("breaker: circuit open")

	// ErrInvalidWindow is returned when the error-rate window
	// configuration is out of range.
	ErrInvalidWindow = errors.New("breaker: invalid window")

	// ErrStateNotFound is returned by a StateStore when no replicated
	// state exists for the service.
	ErrStateNotFound = errors.New("breaker: state not found")
)
