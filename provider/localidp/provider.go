// Package localidp is an in-process identity provider used for local
// development and tests. Identities live in memory, passwords are stored as
// bcrypt hashes, and every session change is delivered through the provider
// change stream exactly as a remote provider would.
package localidp

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	clubauth "github.com/memberhub/go-clubauth"
)

// FederatedFlow completes a federated sign-in and returns the resolved public
// profile. The default flow reports the user as having cancelled.
type FederatedFlow func(ctx context.Context) (clubauth.Profile, error)

type account struct {
	email        string
	name         string
	avatarURL    string
	passwordHash string
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

// Provider implements clubauth.IdentityProvider in memory.
type Provider struct {
	logger    clubauth.Logger
	federated FederatedFlow

	mu        sync.Mutex
	accounts  map[string]*account
	current   clubauth.Identity
	listeners map[uuid.UUID]func(clubauth.Identity)
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

// WithFederatedFlow installs the federated completion flow.
func WithFederatedFlow(flow FederatedFlow) Option {
	return func(p *Provider) {
		if flow != nil {
			p.federated = flow
		}
	}
}

// New returns an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		accounts:  map[string]*account{},
		listeners: map[uuid.UUID]func(clubauth.Identity){},
		federated: func(context.Context) (clubauth.Profile, error) {
			return clubauth.Profile{}, clubauth.ErrUserCancelled
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Seed registers an account without emitting a change event. Useful to set up
// dev fixtures before the session manager subscribes.
func (p *Provider) Seed(email, password, name, avatarURL string) error {
	hash, err := clubauth.HashPassword(password)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.accounts[email] = &account{
		email:        email,
		name:         name,
		avatarURL:    avatarURL,
		passwordHash: hash,
	}
	return nil
}

func (p *Provider) CreateIdentity(ctx context.Context, email, password string) (clubauth.Identity, error) {
	hash, err := clubauth.HashPassword(password)
	if err != nil {
		return nil, clubauth.ErrInvalidCredentials.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, clubauth.ErrEmailRegistered.WithMetadata(map[string]any{
			"email": email,
		})
	}

	p.accounts[email] = &account{
		email:        email,
		passwordHash: hash,
	}
	p.mu.Unlock()

	return p.establish(email), nil
}

func (p *Provider) Authenticate(ctx context.Context, email, password string) (clubauth.Identity, error) {
	p.mu.Lock()
	acct, exists := p.accounts[email]
	p.mu.Unlock()

	if !exists {
		return nil, clubauth.ErrInvalidCredentials
	}

	if err := clubauth.ComparePasswordAndHash(password, acct.passwordHash); err != nil {
		return nil, clubauth.ErrInvalidCredentials
	}

	return p.establish(email), nil
}

func (p *Provider) AuthenticateFederated(ctx context.Context) (clubauth.Identity, error) {
	profile, err := p.federated(ctx)
	if err != nil {
		if goerrors.Is(ctx.Err(), context.Canceled) {
			return nil, clubauth.ErrUserCancelled
		}
		return nil, err
	}

	p.mu.Lock()
	if _, exists := p.accounts[profile.Email]; !exists {
		p.accounts[profile.Email] = &account{
			email:     profile.Email,
			name:      profile.Name,
			avatarURL: profile.AvatarURL,
		}
	}
	p.mu.Unlock()

	return p.establish(profile.Email), nil
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

// establish builds a fresh identity for the account and emits the change.
// The credential is renewed on every authentication.
func (p *Provider) establish(email string) clubauth.Identity {
	p.mu.Lock()
	acct := p.accounts[email]
	next := identity{
		email:      acct.email,
		name:       acct.name,
		avatarURL:  acct.avatarURL,
		credential: uuid.New().String(),
	}
	p.mu.Unlock()

	p.setCurrent(next)
	return next
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

var _ clubauth.IdentityProvider = (*Provider)(nil)
