// internal/gateway/errors.go
package gateway

import (
	"fmt"
	"time"
)

// Kind classifies gateway failures for callers and audit records.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindValidationRejected Kind = "validation_rejected"
	KindApprovalRequired   Kind = "approval_required"
	KindApprovalInvalid    Kind = "approval_invalid"
	KindApprovalExpired    Kind = "approval_expired"
	KindApprovalMismatch   Kind = "approval_mismatch"
	KindCircuitOpen        Kind = "circuit_open"
	KindPoolTimeout        Kind = "pool_timeout"
	KindDriverError        Kind = "driver_error"
	KindBadIdentifier      Kind = "bad_identifier"
)

// Error is the gateway's uniform failure value. RetryAfter is set for the
// kinds where waiting helps (rate_limited, circuit_open).
type Error struct {
	Kind       Kind
	Reason     string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Kind, e.Reason, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
