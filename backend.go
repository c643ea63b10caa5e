package clubauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	goerrors "github.com/goliatone/go-errors"
)

// HTTPBackend implements Backend against the club REST API. Token minting
// goes over the public client; role lookups go over the authenticated client
// so the bearer header is attached when a token is stored.
type HTTPBackend struct {
	baseURL string
	public  *http.Client
	secure  *http.Client
	logger  Logger
}

// BackendOption customizes backend construction.
type BackendOption func(*HTTPBackend)

// WithBackendLogger overrides the default logger.
func WithBackendLogger(logger Logger) BackendOption {
	return func(b *HTTPBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBackendPublicClient overrides the unauthenticated client.
func WithBackendPublicClient(client *http.Client) BackendOption {
	return func(b *HTTPBackend) {
		if client != nil {
			b.public = client
		}
	}
}

// WithBackendSecureClient overrides the authenticated client.
func WithBackendSecureClient(client *http.Client) BackendOption {
	return func(b *HTTPBackend) {
		if client != nil {
			b.secure = client
		}
	}
}

// NewHTTPBackend returns a backend rooted at cfg's base URL, authenticating
// role lookups from the given store.
func NewHTTPBackend(cfg Config, store TokenStore, opts ...BackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: cfg.GetBackendBaseURL(),
		public:  &http.Client{Timeout: cfg.GetHTTPTimeout()},
		secure:  NewAuthClient(store, cfg.GetHTTPTimeout()),
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

type mintTokenResponse struct {
	Token string `json:"token"`
}

type fetchRoleResponse struct {
	Role string `json:"role"`
}

// MintToken exchanges the identity's public profile for a backend token.
func (b *HTTPBackend) MintToken(ctx context.Context, profile Profile) (string, error) {
	body, err := json.Marshal(profile)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode profile")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/auth/token-exchange", bytes.NewReader(body))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build mint request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.public.Do(req)
	if err != nil {
		return "", wrapNetworkError(err, "token mint request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		if res.StatusCode >= 500 {
			return "", networkStatusError("token mint", res.StatusCode)
		}
		return "", goerrors.New("token mint rejected", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExchange).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": res.StatusCode})
	}

	var payload mintTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode mint response")
	}

	if payload.Token == "" {
		return "", goerrors.New("mint response missing token", goerrors.CategoryInternal)
	}

	return payload.Token, nil
}

// FetchRole resolves the authorization role for the email. The bearer header
// comes from the token store via the authenticated client; without a stored
// token the backend answers 401 and the role stays unknown.
func (b *HTTPBackend) FetchRole(ctx context.Context, email string) (Role, error) {
	endpoint := fmt.Sprintf("%s/users/role/%s", b.baseURL, url.PathEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RoleUnknown, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build role request")
	}

	res, err := b.secure.Do(req)
	if err != nil {
		return RoleUnknown, wrapNetworkError(err, "role request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		if res.StatusCode >= 500 {
			return RoleUnknown, networkStatusError("role fetch", res.StatusCode)
		}
		return RoleUnknown, goerrors.New("role fetch rejected", goerrors.CategoryAuth).
			WithTextCode(TextCodeRoleFetch).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": res.StatusCode})
	}

	var payload fetchRoleResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return RoleUnknown, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode role response")
	}

	role, valid := ParseRole(payload.Role)
	if !valid {
		b.logger.Warn("backend returned unrecognized role", "role", payload.Role, "email", email)
	}

	return role, nil
}

func wrapNetworkError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeNetwork).
		WithCode(goerrors.CodeInternal)
}

func networkStatusError(op string, status int) error {
	return goerrors.New(op+" upstream failure", goerrors.CategoryInternal).
		WithTextCode(TextCodeNetwork).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"status": status})
}

var _ Backend = (*HTTPBackend)(nil)
