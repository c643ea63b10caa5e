package clubauth_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	clubauth "github.com/memberhub/go-clubauth"
	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	assert.True(t, clubauth.IsCredentialError(clubauth.ErrInvalidCredentials))
	assert.True(t, clubauth.IsCredentialError(clubauth.ErrEmailRegistered))
	assert.True(t, clubauth.IsUserCancelled(clubauth.ErrUserCancelled))
	assert.True(t, clubauth.IsNetworkError(clubauth.ErrNetwork))
	assert.True(t, clubauth.IsTokenExchangeError(clubauth.ErrTokenExchange))
	assert.True(t, clubauth.IsRoleFetchError(clubauth.ErrRoleFetch))

	assert.False(t, clubauth.IsCredentialError(clubauth.ErrNetwork))
	assert.False(t, clubauth.IsNetworkError(clubauth.ErrInvalidCredentials))
	assert.False(t, clubauth.IsUserCancelled(nil))
	assert.False(t, clubauth.IsNetworkError(errors.New("plain error")))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("sign-in flow: %w", clubauth.ErrInvalidCredentials)
	assert.True(t, clubauth.IsCredentialError(wrapped))

	richWrapped := goerrors.Wrap(clubauth.ErrNetwork, goerrors.CategoryInternal, "outer context")
	assert.True(t, clubauth.IsNetworkError(richWrapped))
}

func TestPredicatesWithMetadata(t *testing.T) {
	err := clubauth.ErrInvalidCredentials.WithMetadata(map[string]any{
		"validation": "email: must be a valid email address",
	})
	assert.True(t, clubauth.IsCredentialError(err))
}
