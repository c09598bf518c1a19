package royale

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when the player no longer exists
var ErrNotFound = errors.New("player not found")

// ProviderError is a transient upstream failure (network, auth, rate limit, 5xx)
type ProviderError struct {
	StatusCode int // 0 for transport errors
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider error: %s: %v", e.Message, e.Err)
	}
	return "provider error: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a 401/403 from the API, i.e. the token is bad
func IsAuthError(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden
}

// statusError maps a non-200 response status to the error taxonomy
func statusError(statusCode int) error {
	switch statusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ProviderError{StatusCode: statusCode, Message: "check if your API token is valid and whitelisted for this IP"}
	case http.StatusTooManyRequests:
		return &ProviderError{StatusCode: statusCode, Message: "rate limited"}
	default:
		return &ProviderError{StatusCode: statusCode, Message: http.StatusText(statusCode)}
	}
}
