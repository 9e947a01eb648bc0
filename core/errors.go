package core

import "errors"

// Sentinel errors surfaced by the decision core. Invariant-class errors
// abort the whole run; callers match with errors.Is.
var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrUnknownConstellation = errors.New("unknown constellation")
	ErrUnknownEventType     = errors.New("unknown event type")
	ErrNoSamples            = errors.New("no samples for quantity")
	ErrNoFallback           = errors.New("no fallback thresholds configured")
	ErrUnorderedSamples     = errors.New("samples out of timestamp order")
	ErrPoolInvariant        = errors.New("pool invariant violated")
	ErrWeightInvariant      = errors.New("score weights do not sum to 1")
	ErrServingSampleMissing = errors.New("serving satellite has no sample at epoch")
)

// IsInvariantViolation reports whether err belongs to the invariant class
// that must abort a run rather than be recovered locally.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrUnorderedSamples) ||
		errors.Is(err, ErrPoolInvariant) ||
		errors.Is(err, ErrWeightInvariant) ||
		errors.Is(err, ErrServingSampleMissing)
}
