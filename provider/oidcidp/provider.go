// Package oidcidp implements the federated identity provider over OpenID
// Connect. The authorization-code flow happens in a provider-hosted surface;
// AuthenticateFederated blocks until the callback completes the flow or the
// caller's context is cancelled (the user abandoned the flow).
package oidcidp

import (
	"context"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	clubauth "github.com/memberhub/go-clubauth"
	"golang.org/x/oauth2"
)

// Config holds the OIDC client settings.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type identity struct {
	email      string
	name       string
	avatarURL  string
	credential string
}

func (i identity) Email() string      { return i.email }
func (i identity) Name() string       { return i.name }
func (i identity) AvatarURL() string  { return i.avatarURL }
func (i identity) Credential() string { return i.credential }

type federatedResult struct {
	identity clubauth.Identity
	err      error
}

// Provider implements clubauth.IdentityProvider for federated-only sign-in.
type Provider struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	logger       clubauth.Logger

	mu        sync.Mutex
	current   clubauth.Identity
	listeners map[uuid.UUID]func(clubauth.Identity)
	waiters   map[uuid.UUID]chan federatedResult
}

// Option customizes provider construction.
type Option func(*Provider)

// WithLogger overrides the default logger.
func WithLogger(logger clubauth.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New discovers the issuer and returns a federated provider.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	discovered, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover OIDC provider").
			WithTextCode(clubauth.TextCodeNetwork)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	p := &Provider{
		provider: discovered,
		verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     discovered.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		listeners: map[uuid.UUID]func(clubauth.Identity){},
		waiters:   map[uuid.UUID]chan federatedResult{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p, nil
}

// AuthCodeURL returns the provider-hosted URL to begin the federated flow.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// CompleteFederated finishes the flow with the callback authorization code,
// emits the identity change, and unblocks pending AuthenticateFederated
// callers.
func (p *Provider) CompleteFederated(ctx context.Context, code string) (clubauth.Identity, error) {
	resolved, err := p.resolveCode(ctx, code)
	if err != nil {
		p.deliver(federatedResult{err: err})
		return nil, err
	}

	p.setCurrent(resolved)
	p.deliver(federatedResult{identity: resolved})
	return resolved, nil
}

func (p *Provider) resolveCode(ctx context.Context, code string) (clubauth.Identity, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to exchange authorization code").
			WithTextCode(clubauth.TextCodeNetwork)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, goerrors.New("missing id_token in token response", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "failed to verify ID token").
			WithCode(goerrors.CodeUnauthorized)
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "failed to parse ID token claims").
			WithCode(goerrors.CodeUnauthorized)
	}

	if claims.Email == "" {
		return nil, goerrors.New("ID token missing email claim", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return identity{
		email:      claims.Email,
		name:       claims.Name,
		avatarURL:  claims.Picture,
		credential: rawIDToken,
	}, nil
}

func (p *Provider) CreateIdentity(ctx context.Context, email, password string) (clubauth.Identity, error) {
	return nil, goerrors.New("password sign-up not supported by federated provider", goerrors.CategoryAuth).
		WithCode(goerrors.CodeBadRequest)
}

func (p *Provider) Authenticate(ctx context.Context, email, password string) (clubauth.Identity, error) {
	return nil, goerrors.New("password sign-in not supported by federated provider", goerrors.CategoryAuth).
		WithCode(goerrors.CodeBadRequest)
}

// AuthenticateFederated waits for the callback to complete the flow. Context
// cancellation means the user abandoned the provider-hosted surface.
func (p *Provider) AuthenticateFederated(ctx context.Context) (clubauth.Identity, error) {
	waiter := make(chan federatedResult, 1)

	p.mu.Lock()
	id := uuid.New()
	p.waiters[id] = waiter
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiters, id)
		p.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, clubauth.ErrUserCancelled
	case result := <-waiter:
		return result.identity, result.err
	}
}

func (p *Provider) Invalidate(ctx context.Context) error {
	p.setCurrent(nil)
	return nil
}

// Subscribe delivers the current identity synchronously, then every change.
func (p *Provider) Subscribe(onChange func(clubauth.Identity)) func() {
	p.mu.Lock()
	id := uuid.New()
	p.listeners[id] = onChange
	current := p.current
	p.mu.Unlock()

	onChange(current)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) setCurrent(next clubauth.Identity) {
	p.mu.Lock()
	p.current = next
	listeners := make([]func(clubauth.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func (p *Provider) deliver(result federatedResult) {
	p.mu.Lock()
	waiters := make([]chan federatedResult, 0, len(p.waiters))
	for _, ch := range p.waiters {
		waiters = append(waiters, ch)
	}
	p.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- result:
		default:
		}
	}
}

var _ clubauth.IdentityProvider = (*Provider)(nil)
