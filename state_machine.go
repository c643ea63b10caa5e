package clubauth

import (
	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidPhaseTransition = "INVALID_SESSION_PHASE_TRANSITION"

// ErrInvalidPhaseTransition is returned when a requested phase change is not allowed.
var ErrInvalidPhaseTransition = goerrors.New("invalid session phase transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidPhaseTransition).
	WithCode(goerrors.CodeBadRequest)

// SessionPhase is the resolution state of the session manager.
type SessionPhase string

const (
	// PhaseUnresolved covers the window from construction until the first
	// provider event; Resolving is true exactly while in this phase.
	PhaseUnresolved SessionPhase = "unresolved"
	// PhaseAuthenticated means the provider confirmed a non-nil identity.
	PhaseAuthenticated SessionPhase = "authenticated"
	// PhaseAnonymous means the provider confirmed there is no identity.
	PhaseAnonymous SessionPhase = "anonymous"
)

// sessionStateMachine centralizes the phase transition graph. Once resolved,
// a session never re-enters PhaseUnresolved; authenticated-to-authenticated
// covers account switches without passing through anonymous.
type sessionStateMachine struct {
	transitions map[SessionPhase]map[SessionPhase]struct{}
}

func newSessionStateMachine() *sessionStateMachine {
	return &sessionStateMachine{
		transitions: map[SessionPhase]map[SessionPhase]struct{}{
			PhaseUnresolved: {
				PhaseAuthenticated: {},
				PhaseAnonymous:     {},
			},
			PhaseAuthenticated: {
				PhaseAuthenticated: {},
				PhaseAnonymous:     {},
			},
			PhaseAnonymous: {
				PhaseAuthenticated: {},
			},
		},
	}
}

func (sm *sessionStateMachine) canTransition(from, to SessionPhase) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *sessionStateMachine) transition(from, to SessionPhase) (SessionPhase, error) {
	if from == to && from != PhaseUnresolved {
		return from, nil
	}

	if !sm.canTransition(from, to) {
		return from, ErrInvalidPhaseTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
	}

	return to, nil
}

// phaseForIdentity maps a provider-delivered identity to its target phase.
func phaseForIdentity(identity Identity) SessionPhase {
	if identity == nil {
		return PhaseAnonymous
	}
	return PhaseAuthenticated
}
