package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// TimeoutError means the provider did not answer within the deadline.
// Safe for the caller to retry with backoff.
type TimeoutError struct {
	Model   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider timeout after %s (model %s)", e.Elapsed.Round(time.Millisecond), e.Model)
}

// RejectedError means the provider refused the request: bad key, quota,
// content policy, or a malformed payload. Retrying the same request will
// not help.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d): %s", e.StatusCode, e.Message)
}

// UnavailableError means the provider is down or unreachable. Safe for the
// caller to retry with backoff.
type UnavailableError struct {
	StatusCode int
	Message    string
}

func (e *UnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider unavailable (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider unavailable: %s", e.Message)
}

// mapProviderError converts transport/SDK errors into the gateway taxonomy.
func mapProviderError(err error, model string, elapsed time.Duration) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Model: model, Elapsed: elapsed}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Model: model, Elapsed: elapsed}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 500:
			return &UnavailableError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden,
			apiErr.StatusCode == http.StatusPaymentRequired:
			return &RejectedError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		case apiErr.StatusCode >= 400:
			return &RejectedError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
	}

	return &UnavailableError{Message: err.Error()}
}
