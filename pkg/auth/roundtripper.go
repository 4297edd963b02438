package auth

import (
	"net/http"
)

// SecureRoundTripper sets the bearer token and User-Agent on every request.
// The provider bound to the request context wins over the fallback one.
type SecureRoundTripper struct {
	base      http.RoundTripper
	fallback  Provider
	userAgent string
}

// NewSecureRoundTripper creates a new secure round tripper
func NewSecureRoundTripper(base http.RoundTripper, fallback Provider, userAgent string) *SecureRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if fallback == nil {
		fallback = noAuth{}
	}

	return &SecureRoundTripper{
		base:      base,
		fallback:  fallback,
		userAgent: userAgent,
	}
}

// RoundTrip executes a single HTTP transaction with authentication
func (t *SecureRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	provider := t.fallback
	if p, ok := FromContext(req.Context()); ok {
		provider = p
	}

	token, err := provider.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())
	if token != "" {
		clonedReq.Header.Set("Authorization", "Bearer "+token)
	}
	if t.userAgent != "" {
		clonedReq.Header.Set("User-Agent", t.userAgent)
	}

	return t.base.RoundTrip(clonedReq)
}
