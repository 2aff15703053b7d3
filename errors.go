package fedAuth

import "errors"

var (
	// ErrProviderRequired is returned by Build when no identity provider was supplied.
	ErrProviderRequired = errors.New("identity provider required")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrFacadeClosed is returned by operations invoked after Close.
	ErrFacadeClosed = errors.New("facade closed")
	// ErrNoActiveAccount is returned by AccessToken when the provider has no active account.
	ErrNoActiveAccount = errors.New("no active account")
	// ErrTokenUnavailable wraps a failed silent token acquisition.
	ErrTokenUnavailable = errors.New("access token unavailable")
	// ErrLoginPopupFailed wraps a rejected popup login.
	ErrLoginPopupFailed = errors.New("login popup failed")
	// ErrLoginPopupNoAccount is returned when a popup login succeeds without an account.
	ErrLoginPopupNoAccount = errors.New("login popup returned no account")
)
