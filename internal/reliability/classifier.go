package reliability

import (
	"context"
	"errors"
	"net"

	"github.com/ent0n29/carecompanion/internal/protocol"
)

// Failure classes reported for a failed backend exchange. They label logs and
// metrics only; every class surfaces to the user as the same apology.
const (
	FailureCanceled  = "canceled"
	FailureTimeout   = "timeout"
	FailureNetwork   = "network"
	FailureStatus    = "status"
	FailureMalformed = "malformed"
	FailureUnknown   = "unknown"
)

type statusCoder interface {
	StatusCode() int
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyFailure maps a transport error to one of the Failure* labels.
func ClassifyFailure(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, protocol.ErrMalformedResponse) {
		return FailureMalformed
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return FailureStatus
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	return FailureUnknown
}

// Transient reports whether trying the same message again later could succeed.
// The controller only logs it; nothing is retried automatically.
func Transient(err error) bool {
	switch ClassifyFailure(err) {
	case FailureTimeout, FailureNetwork:
		return true
	case FailureStatus:
		var sc statusCoder
		errors.As(err, &sc)
		return IsRetryableHTTPStatus(sc.StatusCode())
	default:
		return false
	}
}
