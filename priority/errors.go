package priority

import "errors"

// Sentinel errors for admission control.
var (
	// ErrRejected is returned when a request's tier is below the
	// configured minimum.
	ErrRejected = errors.New("priority: tier below minimum")

	// ErrWaitTimeout is returned when no slot frees within the tier's
	// wait budget.
	ErrWaitTimeout = errors.New("priority: no slot freed in time")

	// ErrInvalidTier is returned for tiers outside the known range.
	ErrInvalidTier = errors.New("priority: invalid tier")

	// ErrInvalidSlots is returned for a negative slot reservation.
	ErrInvalidSlots = errors.New("priority: invalid slot count")
)
