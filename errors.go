package clubauth

import "github.com/goliatone/go-errors"

const (
	TextCodeInvalidCredentials = "auth_invalid_credentials"
	TextCodeEmailRegistered    = "auth_email_registered"
	TextCodeUserCancelled      = "auth_federated_cancelled"
	TextCodeNetwork            = "auth_network_failure"
	TextCodeTokenExchange      = "auth_token_exchange_failed"
	TextCodeRoleFetch          = "auth_role_fetch_failed"
)

// ErrInvalidCredentials is returned when sign-in credentials are rejected or
// a sign-in target does not exist.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailRegistered is returned when sign-up is attempted with an email that
// already has an identity.
var ErrEmailRegistered = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailRegistered).
	WithCode(errors.CodeConflict)

// ErrUserCancelled is returned when the federated flow is abandoned before an
// identity is resolved.
var ErrUserCancelled = errors.New("federated sign-in cancelled", errors.CategoryAuth).
	WithTextCode(TextCodeUserCancelled).
	WithCode(errors.CodeBadRequest)

// ErrNetwork is returned for transport failures talking to the provider or
// backend. Retryable; prior state is left untouched.
var ErrNetwork = errors.New("network failure", errors.CategoryInternal).
	WithTextCode(TextCodeNetwork).
	WithCode(errors.CodeInternal)

// ErrTokenExchange is returned when minting the backend access token fails.
// Non-fatal: the identity layer stays signed in, authenticated backend calls
// degrade to anonymous until a retry succeeds.
var ErrTokenExchange = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchange).
	WithCode(errors.CodeUnauthorized)

// ErrRoleFetch is returned when resolving the authorization role fails. The
// role stays unknown and gates deny by default.
var ErrRoleFetch = errors.New("role fetch failed", errors.CategoryAuth).
	WithTextCode(TextCodeRoleFetch).
	WithCode(errors.CodeUnauthorized)

// IsCredentialError reports whether err is a user-correctable credential
// failure (bad/unknown credentials or duplicate registration).
func IsCredentialError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials, TextCodeEmailRegistered)
}

// IsUserCancelled reports whether err is an abandoned federated flow.
func IsUserCancelled(err error) bool {
	return hasTextCode(err, TextCodeUserCancelled)
}

// IsNetworkError reports whether err is a retryable transport failure.
func IsNetworkError(err error) bool {
	return hasTextCode(err, TextCodeNetwork)
}

// IsTokenExchangeError reports whether err is a terminal token mint failure.
func IsTokenExchangeError(err error) bool {
	return hasTextCode(err, TextCodeTokenExchange)
}

// IsRoleFetchError reports whether err is a terminal role resolution failure.
func IsRoleFetchError(err error) bool {
	return hasTextCode(err, TextCodeRoleFetch)
}

func hasTextCode(err error, codes ...string) bool {
	for err != nil {
		var rich *errors.Error
		if !errors.As(err, &rich) {
			return false
		}

		for _, code := range codes {
			if rich.TextCode == code {
				return true
			}
		}

		err = rich.Source
	}
	return false
}
