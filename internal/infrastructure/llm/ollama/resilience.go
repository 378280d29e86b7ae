package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/resilience"
)

func classifyAnalysisError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.Verdict{Retryable: true, RecordFailure: true}
		}
		return resilience.Verdict{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}
	return resilience.Verdict{RecordFailure: true}
}

// wrapAnalysisError keeps the error taxonomy stable at the gateway boundary:
// transient conditions carry ErrTemporary, everything else carries
// ErrAnalysisCapability.
func wrapAnalysisError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrAnalysisCapability) {
		return err
	}
	if classifyAnalysisError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "ollama "+operation, err)
	}
	return domain.WrapError(domain.ErrAnalysisCapability, "ollama "+operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
