package clubauth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignUpSuccess    ActivityEventType = "session.signup.success"
	ActivityEventSignUpFailure    ActivityEventType = "session.signup.failure"
	ActivityEventSignInSuccess    ActivityEventType = "session.signin.success"
	ActivityEventSignInFailure    ActivityEventType = "session.signin.failure"
	ActivityEventFederatedSuccess ActivityEventType = "session.federated.success"
	ActivityEventFederatedFailure ActivityEventType = "session.federated.failure"
	ActivityEventSignOut          ActivityEventType = "session.signout"
	ActivityEventTokenExchanged   ActivityEventType = "token.exchange.success"
	ActivityEventTokenFailure     ActivityEventType = "token.exchange.failure"
	ActivityEventRoleFailure      ActivityEventType = "role.fetch.failure"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort; errors are logged and never block the session flow.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
