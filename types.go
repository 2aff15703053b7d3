package fedAuth

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/fedAuth/internal/audit"
)

// InteractionStatus reports which interactive operation, if any, the identity
// provider is currently running. Only [InteractionNone] means the provider has
// settled and its account list can be trusted.
type InteractionStatus string

const (
	InteractionStartup        InteractionStatus = "startup"
	InteractionHandleRedirect InteractionStatus = "handleRedirect"
	InteractionLogin          InteractionStatus = "login"
	InteractionLogout         InteractionStatus = "logout"
	InteractionAcquireToken   InteractionStatus = "acquireToken"
	InteractionSSOSilent      InteractionStatus = "ssoSilent"
	InteractionNone           InteractionStatus = "none"
)

// EventType names a broadcast event emitted by the identity provider.
type EventType string

const (
	EventLoginSuccess        EventType = "loginSuccess"
	EventLoginFailure        EventType = "loginFailure"
	EventLogoutSuccess       EventType = "logoutSuccess"
	EventAcquireTokenSuccess EventType = "acquireTokenSuccess"
	EventAcquireTokenFailure EventType = "acquireTokenFailure"
	EventHandleRedirectEnd   EventType = "handleRedirectEnd"
)

// InteractionType distinguishes how an interactive flow was started.
type InteractionType string

const (
	InteractionTypeRedirect InteractionType = "redirect"
	InteractionTypePopup    InteractionType = "popup"
	InteractionTypeSilent   InteractionType = "silent"
)

// Account is the provider-owned record of a signed-in identity.
//
// Accounts are values: the facade never mutates one it received from the
// provider, it only reads it to build a [UserProfile].
type Account struct {
	HomeAccountID  string
	LocalAccountID string
	Environment    string
	TenantID       string
	Username       string
	Name           string
	IDToken        string
	IDTokenClaims  map[string]any
}

// AuthenticationResult is the outcome of an interactive login, a redirect
// completion, or a silent token acquisition.
type AuthenticationResult struct {
	Account       *Account
	AccessToken   string
	IDToken       string
	Scopes        []string
	ExpiresOn     time.Time
	CorrelationID string
}

// Event is a single message on the provider's broadcast stream.
type Event struct {
	Type        EventType
	Interaction InteractionType
	Payload     *AuthenticationResult
	Err         error
	Timestamp   time.Time
}

// LoginRequest parameterises an interactive login.
type LoginRequest struct {
	Scopes        []string
	Prompt        string
	LoginHint     string
	CorrelationID string
}

// LogoutRequest parameterises a redirect logout.
type LogoutRequest struct {
	Account               *Account
	PostLogoutRedirectURI string
	CorrelationID         string
}

// SilentRequest asks the provider for a cached or refreshed access token
// without user interaction.
type SilentRequest struct {
	Scopes        []string
	Account       *Account
	ForceRefresh  bool
	CorrelationID string
}

// IdentityProvider is the capability surface the facade needs from an
// identity SDK. One instance is shared by every consumer in the process; see
// the federation package for how remotes obtain it.
//
// InteractionStatus and Events return channels that stay open until ctx is
// cancelled. Implementations must not block the caller when a subscriber is
// slow.
type IdentityProvider interface {
	ActiveAccount(ctx context.Context) (*Account, error)
	AllAccounts(ctx context.Context) ([]Account, error)
	SetActiveAccount(ctx context.Context, account *Account) error
	AcquireTokenSilent(ctx context.Context, req SilentRequest) (*AuthenticationResult, error)
	LoginRedirect(ctx context.Context, req LoginRequest) error
	LoginPopup(ctx context.Context, req LoginRequest) (*AuthenticationResult, error)
	LogoutRedirect(ctx context.Context, req LogoutRequest) error
	HandleRedirectResult(ctx context.Context) (*AuthenticationResult, error)
	InteractionStatus(ctx context.Context) <-chan InteractionStatus
	Events(ctx context.Context) <-chan Event
}

// UserProfile is the user-facing view of the active account. A profile is
// replaced as a whole whenever the active account changes.
type UserProfile struct {
	Name     string
	Email    string
	Username string
	TenantID string
	Roles    []string
}

func (p *UserProfile) clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Roles = append([]string(nil), p.Roles...)
	return &out
}

// Session is a point-in-time snapshot of the authentication state.
type Session struct {
	IsAuthenticated bool
	User            *UserProfile
	IsLoading       bool
}

func (s Session) clone() Session {
	s.User = s.User.clone()
	return s
}

func (s Session) equal(o Session) bool {
	if s.IsAuthenticated != o.IsAuthenticated || s.IsLoading != o.IsLoading {
		return false
	}
	if (s.User == nil) != (o.User == nil) {
		return false
	}
	if s.User == nil {
		return true
	}
	a, b := s.User, o.User
	if a.Name != b.Name || a.Email != b.Email || a.Username != b.Username || a.TenantID != b.TenantID {
		return false
	}
	if len(a.Roles) != len(b.Roles) {
		return false
	}
	for i := range a.Roles {
		if a.Roles[i] != b.Roles[i] {
			return false
		}
	}
	return true
}

// AuditEvent is the audit record emitted for session transitions and
// provider failures.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the facade's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events into a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}
