package venue

import "fmt"

// ErrorCode is the closed error enum named in the design notes (§9): venue
// rejections are classified, not raised as exceptions, so call sites can
// apply the exact shrink/retry policy the spec names for each class (§4.3).
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrMarginInsufficient
	ErrReduceOnlyRejected
	ErrRateLimited
	ErrTransient
	ErrFatal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrMarginInsufficient:
		return "MARGIN_INSUFFICIENT"
	case ErrReduceOnlyRejected:
		return "REDUCE_ONLY_REJECTED"
	case ErrRateLimited:
		return "RATE_LIMITED"
	case ErrTransient:
		return "TRANSIENT"
	case ErrFatal:
		return "FATAL"
	default:
		return "NONE"
	}
}

// Error wraps a venue rejection with its classification and the operation
// that produced it, implementing the standard error/Unwrap contract so
// callers can use errors.As to branch on Code.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("venue: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("venue: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the reconciler should apply a shrink-and-retry
// policy rather than aborting the tick (§4.3, §7).
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrMarginInsufficient, ErrReduceOnlyRejected, ErrRateLimited, ErrTransient:
		return true
	default:
		return false
	}
}
