package clubauth

import (
	"net/http"
	"time"
)

// AuthTransport attaches the stored access token as a bearer Authorization
// header on every outbound request. When no token is stored the request goes
// out unauthenticated and the backend treats the caller as anonymous; callers
// of protected endpoints must tolerate the resulting 401s and retry rather
// than treat them as a logout signal.
type AuthTransport struct {
	store TokenStore
	base  http.RoundTripper
}

// NewAuthTransport wraps base (http.DefaultTransport when nil).
func NewAuthTransport(store TokenStore, base http.RoundTripper) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{store: store, base: base}
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok, err := t.store.Get(req.Context())
	if err != nil || !ok || token == "" {
		return t.base.RoundTrip(req)
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)

	return t.base.RoundTrip(authed)
}

// NewAuthClient returns an HTTP client that authenticates from the store and
// enforces a request timeout.
func NewAuthClient(store TokenStore, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewAuthTransport(store, nil),
	}
}

var _ http.RoundTripper = (*AuthTransport)(nil)
