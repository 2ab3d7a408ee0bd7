package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"firebase.google.com/go/v4/messaging"
)

// TransportError classifies a whole-batch gateway call failure. The batch
// never reached a per-token verdict, so the dispatcher retries it wholesale.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, "gateway transport error")
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransport reports whether a gateway call failed at the batch level.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// classifySendError maps an FCM per-token send error to a reason code.
func classifySendError(err error) ReasonCode {
	switch {
	case err == nil:
		return ""
	case messaging.IsUnregistered(err):
		return ReasonUnregistered
	case messaging.IsInvalidArgument(err):
		return ReasonInvalidToken
	case messaging.IsThirdPartyAuthError(err):
		return ReasonThirdPartyAuthErr
	case messaging.IsUnavailable(err):
		return ReasonUnavailable
	case messaging.IsInternal(err):
		return ReasonInternal
	case messaging.IsQuotaExceeded(err):
		return ReasonQuotaExceeded
	default:
		return ReasonUnknown
	}
}

func wrapTransport(message string, cause error) error {
	return &TransportError{
		Message: message,
		Cause:   fmt.Errorf("fcm: %w", cause),
	}
}
