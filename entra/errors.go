package entra

import "errors"

var (
	// ErrInteractionRequired means no cached or refreshable token exists and
	// the user has to sign in interactively.
	ErrInteractionRequired = errors.New("entra: interaction required")
	// ErrNoAccount is returned by silent acquisition without an account.
	ErrNoAccount = errors.New("entra: no account")
	// ErrUnknownState is returned by the callback for a state it did not issue
	// or that has expired.
	ErrUnknownState = errors.New("entra: unknown or expired state")
	// ErrNonceMismatch is returned when the ID token nonce does not match the
	// login that requested it.
	ErrNonceMismatch = errors.New("entra: nonce mismatch")
	// ErrMissingIDToken is returned when the token endpoint omits id_token.
	ErrMissingIDToken = errors.New("entra: token response has no id_token")
	// ErrNoHTTPResponse is returned by HTTPNavigator when ctx carries no
	// response writer.
	ErrNoHTTPResponse = errors.New("entra: no http response in context")
	// ErrClosed is returned by operations on a closed provider.
	ErrClosed = errors.New("entra: provider closed")
)

// AuthorizationError is an error returned by the authorization endpoint.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "entra: authorization failed: " + e.Code
	}
	return "entra: authorization failed: " + e.Code + ": " + e.Description
}
