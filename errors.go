package meshguard

import (
	"context"
	"errors"
	"fmt"
)

// The only errors Do returns besides the operation's own are these
// three. Internal strategy, metrics, and cache failures are logged and
// absorbed, never surfaced.
var (
	// ErrCircuitOpen is returned when the target's circuit rejects the
	// call before it runs.
	ErrCircuitOpen = errors.New("meshguard: circuit open")

	// ErrAdmissionRejected is returned when the priority manager or
	// rate limiter declines the call before it runs.
	ErrAdmissionRejected = errors.New("meshguard: admission rejected")

	// ErrTimeout is returned when the operation exceeds the adaptive
	// timeout computed for it. It also matches
	// context.DeadlineExceeded, so deadline-aware callers need no
	// special case.
	ErrTimeout = fmt.Errorf("meshguard: timeout exceeded: %w", context.DeadlineExceeded)

	// ErrClosed is returned by calls made after Shutdown.
	ErrClosed = errors.New("meshguard: client closed")
)
