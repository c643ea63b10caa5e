package clubauth

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenExchanger turns a resolved identity into a backend access token and
// keeps the TokenStore in sync with the session: a non-nil identity change
// triggers an exchange, a sign-out clears the stored token.
//
// Exchange failures are non-fatal. The user stays signed in at the identity
// layer and authenticated backend calls are treated as anonymous until a
// retry succeeds; callers must tolerate 401s during that window instead of
// treating them as a logout signal.
type TokenExchanger struct {
	backend     Backend
	store       TokenStore
	logger      Logger
	sink        ActivitySink
	maxAttempts uint64
	newBackOff  func() backoff.BackOff
	clock       func() time.Time
}

// ExchangerOption customizes exchanger construction.
type ExchangerOption func(*TokenExchanger)

// WithExchangerLogger overrides the default logger.
func WithExchangerLogger(logger Logger) ExchangerOption {
	return func(x *TokenExchanger) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// WithExchangerActivitySink sets the ActivitySink for exchange events.
func WithExchangerActivitySink(sink ActivitySink) ExchangerOption {
	return func(x *TokenExchanger) {
		x.sink = normalizeActivitySink(sink)
	}
}

// WithExchangeRetries bounds the retry budget for a single exchange.
func WithExchangeRetries(attempts uint64) ExchangerOption {
	return func(x *TokenExchanger) {
		x.maxAttempts = attempts
	}
}

// WithExchangeBackOff overrides the retry policy factory (useful for tests).
func WithExchangeBackOff(factory func() backoff.BackOff) ExchangerOption {
	return func(x *TokenExchanger) {
		if factory != nil {
			x.newBackOff = factory
		}
	}
}

// WithExchangerClock injects a custom clock (useful for tests).
func WithExchangerClock(clock func() time.Time) ExchangerOption {
	return func(x *TokenExchanger) {
		if clock != nil {
			x.clock = clock
		}
	}
}

// NewTokenExchanger returns an exchanger writing to the given store.
func NewTokenExchanger(backend Backend, store TokenStore, opts ...ExchangerOption) *TokenExchanger {
	x := &TokenExchanger{
		backend:     backend,
		store:       store,
		logger:      defLogger{},
		sink:        noopActivitySink{},
		maxAttempts: 3,
		newBackOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		clock:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(x)
		}
	}

	return x
}

// Attach wires the exchanger to a session manager: every non-nil identity
// change triggers an exchange, sign-out clears the store. If the session is
// already authenticated an exchange starts immediately. The returned detach
// function cancels in-flight exchanges so stale completions never write.
func (x *TokenExchanger) Attach(sm *SessionManager) func() {
	ctx, cancel := context.WithCancel(context.Background())

	exchange := func(identity Identity) {
		if err := x.Exchange(ctx, identity); err != nil {
			if goerrors.Is(err, context.Canceled) {
				return
			}
			x.logger.Warn("background token exchange failed", "email", identity.Email(), "error", err)
		}
	}

	unwatch := sm.Watch(func(identity Identity) {
		if identity == nil {
			if err := x.store.Clear(ctx); err != nil {
				x.logger.Warn("failed to clear stored token on sign-out", "error", err)
			}
			return
		}
		go exchange(identity)
	})

	if snap := sm.Snapshot(); snap.Identity != nil {
		go exchange(snap.Identity)
	}

	return func() {
		cancel()
		unwatch()
	}
}

// Exchange mints a backend token for the identity's public profile and
// persists it. On failure the previously stored token is left untouched.
func (x *TokenExchanger) Exchange(ctx context.Context, identity Identity) error {
	if identity == nil {
		return goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	profile := profileFromIdentity(identity)

	var token string
	operation := func() error {
		minted, err := x.backend.MintToken(ctx, profile)
		if err != nil {
			if !IsNetworkError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		token = minted
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(x.newBackOff(), x.maxAttempts), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		x.logger.Error("token exchange failed", "email", profile.Email, "error", err)
		x.recordActivity(ctx, ActivityEventTokenFailure, profile.Email, map[string]any{"error": err.Error()})
		return goerrors.Wrap(err, goerrors.CategoryAuth, "token exchange failed").
			WithTextCode(TextCodeTokenExchange).
			WithCode(goerrors.CodeUnauthorized)
	}

	if err := x.store.Set(ctx, token); err != nil {
		x.logger.Error("failed to persist exchanged token", "email", profile.Email, "error", err)
		x.recordActivity(ctx, ActivityEventTokenFailure, profile.Email, map[string]any{"error": err.Error()})
		return goerrors.Wrap(err, goerrors.CategoryAuth, "token exchange failed").
			WithTextCode(TextCodeTokenExchange).
			WithCode(goerrors.CodeUnauthorized)
	}

	x.recordActivity(ctx, ActivityEventTokenExchanged, profile.Email, nil)
	return nil
}

// EnsureFresh exchanges only when no token is stored, or when the stored
// token carries a readable expiry that has passed. Opaque tokens are reused
// as-is.
func (x *TokenExchanger) EnsureFresh(ctx context.Context, identity Identity) error {
	if identity == nil {
		return nil
	}

	token, ok, err := x.store.Get(ctx)
	if err != nil {
		x.logger.Warn("failed to read stored token, re-exchanging", "error", err)
	}

	if err == nil && ok && !tokenExpired(token, x.clock()) {
		return nil
	}

	return x.Exchange(ctx, identity)
}

func (x *TokenExchanger) recordActivity(ctx context.Context, eventType ActivityEventType, email string, metadata map[string]any) {
	sink := normalizeActivitySink(x.sink)
	event := ActivityEvent{
		EventType:  eventType,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: x.clock(),
	}

	if err := sink.Record(ctx, event); err != nil {
		x.logger.Warn("activity sink record error: %v", err)
	}
}

func profileFromIdentity(identity Identity) Profile {
	name := identity.Name()
	if name == "" {
		name = "User"
	}

	return Profile{
		Email:     identity.Email(),
		Name:      name,
		AvatarURL: identity.AvatarURL(),
	}
}

// tokenExpired peeks at an unverified exp claim. The token stays opaque to
// this package; the claim is advisory only and the backend remains the
// authority on validity.
func tokenExpired(raw string, now time.Time) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Time.Before(now)
}
