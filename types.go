package clubauth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of the externally authenticated principal.
// The email is the stable unique key; the credential is an opaque, renewable
// value issued by the provider and never inspected by this package.
type Identity interface {
	Email() string
	Name() string
	AvatarURL() string
	Credential() string
}

// IdentityProvider wraps the external identity provider. Implementations must
// deliver the current identity (or nil) to every subscriber immediately on
// Subscribe, and again on every subsequent change, exactly once per change.
// Successful CreateIdentity, Authenticate, AuthenticateFederated, and
// Invalidate calls are observed through the change stream, never through
// return values alone.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string) (Identity, error)
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	AuthenticateFederated(ctx context.Context) (Identity, error)
	Invalidate(ctx context.Context) error
	Subscribe(onChange func(Identity)) (unsubscribe func())
}

// Backend is the REST API surface this core consumes: minting an application
// access token from an identity's public profile, and resolving the
// authorization role for an email.
type Backend interface {
	MintToken(ctx context.Context, profile Profile) (string, error)
	FetchRole(ctx context.Context, email string) (Role, error)
}

// TokenStore is the durable client-side storage for the backend access token.
// It holds at most one entry; Get returns false when no token is stored.
type TokenStore interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Profile carries the identity's public fields sent to the mint endpoint.
type Profile struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// Snapshot is a point-in-time view of the session manager state. Resolving is
// true only during the initial identity determination; ActionBusy is true
// during any explicit sign-in/up/out call.
type Snapshot struct {
	Identity   Identity
	Resolving  bool
	ActionBusy bool
}

// Config holds session/authorization options
type Config interface {
	GetBackendBaseURL() string
	GetSignInPath() string
	GetNotAuthorizedPath() string
	GetRejectedRouteKey() string
	GetRoleCacheTTL() time.Duration
	GetRoleCacheSize() int
	GetRetryMaxAttempts() uint64
	GetHTTPTimeout() time.Duration
	GetTokenStorageKey() string
	GetTokenStoragePath() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] CLUBAUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] CLUBAUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] CLUBAUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] CLUBAUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
