package royale

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// probePath is the cheapest authenticated endpoint
const probePath = "/cards?limit=1"

var errEmptyToken = errors.New("API token cannot be empty")

// KeyValidator checks candidate tokens, independent of any Client's token
type KeyValidator struct {
	httpClient *http.Client
	baseURL    string
}

type KeyValidatorOption func(*KeyValidator)

// WithBaseURL points the validator at a proxy or test server
func WithBaseURL(url string) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.baseURL = strings.TrimRight(url, "/")
	}
}

func WithTimeout(timeout time.Duration) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.httpClient.Timeout = timeout
	}
}

func NewKeyValidator(opts ...KeyValidatorOption) *KeyValidator {
	v := &KeyValidator{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateKey reports whether the API accepts token. A 401/403 is a definite
// (false, nil); any other failure leaves validity unknown and is returned.
func (v *KeyValidator) ValidateKey(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, errEmptyToken
	}

	err := v.probe(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case IsAuthError(err):
		return false, nil
	default:
		return false, err
	}
}

func (v *KeyValidator) probe(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+probePath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Message: "token probe failed", Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}
