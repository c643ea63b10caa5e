package clubauth_test

import (
	"context"
	"sync"

	clubauth "github.com/memberhub/go-clubauth"
	"github.com/stretchr/testify/mock"
)

// testIdentity is a fixed-value Identity for assertions.
type testIdentity struct {
	email      string
	name       string
	avatarURL  string
	credential string
}

func (t testIdentity) Email() string      { return t.email }
func (t testIdentity) Name() string       { return t.name }
func (t testIdentity) AvatarURL() string  { return t.avatarURL }
func (t testIdentity) Credential() string { return t.credential }

func newTestIdentity(email string) testIdentity {
	return testIdentity{
		email:      email,
		name:       "Test User",
		credential: "cred-" + email,
	}
}

// MockBackend implements clubauth.Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) MintToken(ctx context.Context, profile clubauth.Profile) (string, error) {
	args := m.Called(ctx, profile)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) FetchRole(ctx context.Context, email string) (clubauth.Role, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(clubauth.Role), args.Error(1)
}

// fakeProvider is a hand-driven provider change stream. Unlike a conforming
// provider it does not deliver on Subscribe, so tests can observe the
// unresolved phase and control exactly when the first determination lands.
type fakeProvider struct {
	mu        sync.Mutex
	listeners map[int]func(clubauth.Identity)
	nextID    int
	unsubs    int

	authCalls     int
	invalidations int

	createFn     func(ctx context.Context, email, password string) (clubauth.Identity, error)
	authFn       func(ctx context.Context, email, password string) (clubauth.Identity, error)
	federatedFn  func(ctx context.Context) (clubauth.Identity, error)
	invalidateFn func(ctx context.Context) error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: map[int]func(clubauth.Identity){}}
}

func (p *fakeProvider) emit(identity clubauth.Identity) {
	p.mu.Lock()
	listeners := make([]func(clubauth.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(identity)
	}
}

func (p *fakeProvider) CreateIdentity(ctx context.Context, email, password string) (clubauth.Identity, error) {
	if p.createFn != nil {
		return p.createFn(ctx, email, password)
	}
	identity := newTestIdentity(email)
	p.emit(identity)
	return identity, nil
}

func (p *fakeProvider) Authenticate(ctx context.Context, email, password string) (clubauth.Identity, error) {
	p.mu.Lock()
	p.authCalls++
	p.mu.Unlock()

	if p.authFn != nil {
		return p.authFn(ctx, email, password)
	}
	identity := newTestIdentity(email)
	p.emit(identity)
	return identity, nil
}

func (p *fakeProvider) AuthenticateFederated(ctx context.Context) (clubauth.Identity, error) {
	if p.federatedFn != nil {
		return p.federatedFn(ctx)
	}
	return nil, clubauth.ErrUserCancelled
}

func (p *fakeProvider) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	p.invalidations++
	p.mu.Unlock()

	if p.invalidateFn != nil {
		return p.invalidateFn(ctx)
	}
	p.emit(nil)
	return nil
}

func (p *fakeProvider) Subscribe(onChange func(clubauth.Identity)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = onChange

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
		p.unsubs++
	}
}

func (p *fakeProvider) authenticateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authCalls
}

func (p *fakeProvider) invalidateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalidations
}

func (p *fakeProvider) unsubscribeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubs
}

// countingBackend records role fetches without the ceremony of a full mock.
type countingBackend struct {
	mu        sync.Mutex
	roleCalls int
	roleFn    func(ctx context.Context, email string) (clubauth.Role, error)
}

func (b *countingBackend) MintToken(ctx context.Context, profile clubauth.Profile) (string, error) {
	return "counting-token", nil
}

func (b *countingBackend) FetchRole(ctx context.Context, email string) (clubauth.Role, error) {
	b.mu.Lock()
	b.roleCalls++
	b.mu.Unlock()

	if b.roleFn != nil {
		return b.roleFn(ctx, email)
	}
	return clubauth.RoleMember, nil
}

func (b *countingBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roleCalls
}
