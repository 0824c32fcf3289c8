package backend

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors categorize backend failures for user-facing messaging.
// Checked with errors.Is(); every client method wraps one of these.
var (
	// ErrConnection indicates the backend could not be reached.
	ErrConnection = errors.New("backend connection failed")

	// ErrAuth indicates the backend rejected our credentials.
	ErrAuth = errors.New("backend authentication failed")

	// ErrTimeout indicates the backend did not answer within the deadline.
	ErrTimeout = errors.New("backend request timed out")

	// ErrProcessing indicates the backend accepted the request but failed
	// to process it.
	ErrProcessing = errors.New("backend processing failed")

	// ErrValidation indicates the backend rejected the request payload.
	ErrValidation = errors.New("backend rejected request")
)

// Error category names, exposed in API error responses.
const (
	CategoryConnection = "connection"
	CategoryAuth       = "auth"
	CategoryTimeout    = "timeout"
	CategoryProcessing = "processing"
	CategoryValidation = "validation"
	CategoryUnknown    = "unknown"
)

// Category maps an error to its taxonomy name.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrAuth):
		return CategoryAuth
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrConnection):
		return CategoryConnection
	case errors.Is(err, ErrProcessing):
		return CategoryProcessing
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether a backend error is transient.
// Auth and validation failures never recover without operator action.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrValidation) {
		return false
	}
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProcessing) ||
		errors.Is(err, context.DeadlineExceeded)
}

// statusError maps an HTTP status code to a sentinel category.
// nil for 2xx.
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status == http.StatusTooManyRequests:
		return ErrProcessing // transient; Retryable treats processing as retryable
	case status >= 500:
		return ErrProcessing
	case status >= 400:
		// Remaining 4xx (404, 405, 409, ...) will not succeed on retry.
		return ErrValidation
	default:
		return ErrProcessing
	}
}
