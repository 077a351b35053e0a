// internal/api/errors.go
package api

import (
	"errors"
	"net/http"

	"github.com/askdba/oracle-mcp-server/internal/gateway"
)

// WriteGatewayError maps a dispatcher failure onto an HTTP status. The
// dispatcher already charged the shared rate limiter, so nothing here counts
// requests; retryable kinds go out through WriteRetryableError.
func WriteGatewayError(w http.ResponseWriter, err error) {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		WriteInternalError(w, err.Error())
		return
	}

	status := statusFor(gerr.Kind)
	if gerr.RetryAfter > 0 {
		WriteRetryableError(w, status, gerr.Error(), gerr.RetryAfter)
		return
	}
	WriteError(w, status, gerr.Error())
}

func statusFor(kind gateway.Kind) int {
	switch kind {
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	case gateway.KindValidationRejected, gateway.KindBadIdentifier:
		return http.StatusBadRequest
	case gateway.KindApprovalRequired, gateway.KindApprovalInvalid,
		gateway.KindApprovalExpired, gateway.KindApprovalMismatch:
		return http.StatusForbidden
	case gateway.KindCircuitOpen, gateway.KindPoolTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
