package clubauth

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

// SessionManager is the single source of truth for the current identity and
// whether that determination is still in flight. It owns exactly one
// subscription to the provider change stream for its whole lifetime; identity
// snapshots are replaced wholesale by provider events.
type SessionManager struct {
	provider IdentityProvider
	logger   Logger
	sink     ActivitySink
	phases   *sessionStateMachine

	mu          sync.Mutex
	phase       SessionPhase
	identity    Identity
	actionDepth int
	watchers    map[uuid.UUID]func(Identity)
	unsubscribe func()
	closed      bool
}

// SessionOption customizes session manager construction.
type SessionOption func(*SessionManager)

// WithSessionLogger overrides the default logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(sm *SessionManager) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithSessionActivitySink sets the ActivitySink used to publish session events.
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(sm *SessionManager) {
		sm.sink = normalizeActivitySink(sink)
	}
}

// NewSessionManager subscribes to the provider change stream and returns the
// manager. The manager stays in PhaseUnresolved until the provider delivers
// its first determination; call Close to release the subscription.
func NewSessionManager(provider IdentityProvider, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		provider: provider,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		phases:   newSessionStateMachine(),
		phase:    PhaseUnresolved,
		watchers: map[uuid.UUID]func(Identity){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	sm.unsubscribe = provider.Subscribe(sm.handleProviderEvent)

	return sm
}

// Snapshot returns a point-in-time view of the session state.
func (sm *SessionManager) Snapshot() Snapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return Snapshot{
		Identity:   sm.identity,
		Resolving:  sm.phase == PhaseUnresolved,
		ActionBusy: sm.actionDepth > 0,
	}
}

// Phase returns the current resolution phase.
func (sm *SessionManager) Phase() SessionPhase {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.phase
}

// Watch registers fn to be invoked on every identity change (including the
// change to nil on sign-out). The returned function removes the watcher.
func (sm *SessionManager) Watch(fn func(Identity)) func() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed || fn == nil {
		return func() {}
	}

	id := uuid.New()
	sm.watchers[id] = fn

	return func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		delete(sm.watchers, id)
	}
}

// SignUp creates a new identity with the provider. The session snapshot is
// updated through the provider change stream, not by this call.
func (sm *SessionManager) SignUp(ctx context.Context, email, password string) (Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, ErrInvalidCredentials.WithMetadata(map[string]any{
			"validation": err.Error(),
		})
	}

	sm.beginAction()
	defer sm.endAction()

	identity, err := sm.provider.CreateIdentity(ctx, email, password)
	if err != nil {
		sm.logger.Error("SignUp create identity error", "email", email, "error", err)
		sm.recordActivity(ctx, ActivityEventSignUpFailure, email, map[string]any{"error": err.Error()})
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEventSignUpSuccess, identity.Email(), nil)
	return identity, nil
}

// SignIn resolves an existing identity with the provider.
func (sm *SessionManager) SignIn(ctx context.Context, email, password string) (Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, ErrInvalidCredentials.WithMetadata(map[string]any{
			"validation": err.Error(),
		})
	}

	sm.beginAction()
	defer sm.endAction()

	identity, err := sm.provider.Authenticate(ctx, email, password)
	if err != nil {
		sm.logger.Error("SignIn verify identity error", "email", email, "error", err)
		sm.recordActivity(ctx, ActivityEventSignInFailure, email, map[string]any{"error": err.Error()})
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEventSignInSuccess, identity.Email(), nil)
	return identity, nil
}

// SignInFederated opens the provider-hosted federated flow and resolves the
// identity on completion. A flow abandoned by the user surfaces as
// ErrUserCancelled.
func (sm *SessionManager) SignInFederated(ctx context.Context) (Identity, error) {
	sm.beginAction()
	defer sm.endAction()

	identity, err := sm.provider.AuthenticateFederated(ctx)
	if err != nil {
		if IsUserCancelled(err) {
			sm.logger.Info("SignInFederated cancelled by user")
		} else {
			sm.logger.Error("SignInFederated error", "error", err)
		}
		sm.recordActivity(ctx, ActivityEventFederatedFailure, "", map[string]any{"error": err.Error()})
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEventFederatedSuccess, identity.Email(), nil)
	return identity, nil
}

// SignOut clears the current identity. Local state reflects "signed out"
// regardless of the provider outcome; a provider failure is still returned so
// callers can surface a transient notice. Idempotent when already signed out.
func (sm *SessionManager) SignOut(ctx context.Context) error {
	sm.beginAction()
	defer sm.endAction()

	err := sm.provider.Invalidate(ctx)
	if err != nil {
		sm.logger.Warn("SignOut provider invalidate failed, forcing local sign-out", "error", err)
	}

	// Local-first: do not wait for the provider stream to confirm. A
	// well-behaved provider emits nil as well; the duplicate is a no-op.
	sm.handleProviderEvent(nil)

	sm.recordActivity(ctx, ActivityEventSignOut, "", nil)
	return err
}

// Close releases the provider subscription and drops all watchers. The
// manager must not be used afterwards.
func (sm *SessionManager) Close() {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return
	}
	sm.closed = true
	unsubscribe := sm.unsubscribe
	sm.unsubscribe = nil
	sm.watchers = map[uuid.UUID]func(Identity){}
	sm.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (sm *SessionManager) handleProviderEvent(identity Identity) {
	sm.mu.Lock()

	if sm.closed {
		sm.mu.Unlock()
		return
	}

	// Duplicate deliveries are idempotent once resolved.
	if sm.phase != PhaseUnresolved && identitiesEqual(sm.identity, identity) {
		sm.mu.Unlock()
		return
	}

	next, err := sm.phases.transition(sm.phase, phaseForIdentity(identity))
	if err != nil {
		sm.logger.Error("session phase transition rejected", "error", err)
		sm.mu.Unlock()
		return
	}

	sm.phase = next
	sm.identity = identity

	watchers := make([]func(Identity), 0, len(sm.watchers))
	for _, fn := range sm.watchers {
		watchers = append(watchers, fn)
	}
	sm.mu.Unlock()

	// Watchers run outside the lock so they can read the snapshot.
	for _, fn := range watchers {
		fn(identity)
	}
}

func (sm *SessionManager) beginAction() {
	sm.mu.Lock()
	sm.actionDepth++
	sm.mu.Unlock()
}

func (sm *SessionManager) endAction() {
	sm.mu.Lock()
	if sm.actionDepth > 0 {
		sm.actionDepth--
	}
	sm.mu.Unlock()
}

func (sm *SessionManager) recordActivity(ctx context.Context, eventType ActivityEventType, email string, metadata map[string]any) {
	sink := normalizeActivitySink(sm.sink)
	event := ActivityEvent{
		EventType: eventType,
		Email:     email,
		Metadata:  metadata,
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("activity sink record error: %v", err)
	}
}

func identitiesEqual(a, b Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Email() == b.Email() && a.Credential() == b.Credential()
}

func validateCredentials(email, password string) error {
	return validation.Errors{
		"email":    validation.Validate(email, validation.Required, is.Email),
		"password": validation.Validate(password, validation.Required, validation.Length(6, 128)),
	}.Filter()
}
