package oidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/vetpath/vetpath-client/internal/infrastructure/resilience"
)

type identityStatusError struct {
	operation  string
	statusCode int
	status     string
	body       string
}

func (e *identityStatusError) Error() string {
	if e == nil {
		return "identity status error"
	}
	if e.body == "" {
		return fmt.Sprintf("identity %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("identity %s status: %s: %s", e.operation, e.status, e.body)
}

func classifyIdentityError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *identityStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		default:
			// 4xx from the provider means the grant is dead; retrying
			// cannot revive it.
			return resilience.ErrorClassification{
				Retryable:     false,
				RecordFailure: false,
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
