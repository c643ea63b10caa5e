package clubauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPhaseTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionPhase
		to      SessionPhase
		want    SessionPhase
		wantErr bool
	}{
		{name: "unresolved to authenticated", from: PhaseUnresolved, to: PhaseAuthenticated, want: PhaseAuthenticated},
		{name: "unresolved to anonymous", from: PhaseUnresolved, to: PhaseAnonymous, want: PhaseAnonymous},
		{name: "authenticated to anonymous", from: PhaseAuthenticated, to: PhaseAnonymous, want: PhaseAnonymous},
		{name: "anonymous to authenticated", from: PhaseAnonymous, to: PhaseAuthenticated, want: PhaseAuthenticated},
		{name: "account switch stays authenticated", from: PhaseAuthenticated, to: PhaseAuthenticated, want: PhaseAuthenticated},
		{name: "anonymous to anonymous is a no-op", from: PhaseAnonymous, to: PhaseAnonymous, want: PhaseAnonymous},
		{name: "never back to unresolved from authenticated", from: PhaseAuthenticated, to: PhaseUnresolved, want: PhaseAuthenticated, wantErr: true},
		{name: "never back to unresolved from anonymous", from: PhaseAnonymous, to: PhaseUnresolved, want: PhaseAnonymous, wantErr: true},
	}

	machine := newSessionStateMachine()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := machine.transition(tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPhaseTransition)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhaseForIdentity(t *testing.T) {
	assert.Equal(t, PhaseAnonymous, phaseForIdentity(nil))
	assert.Equal(t, PhaseAuthenticated, phaseForIdentity(gateIdentity{email: "ada@club.test"}))
}
