package fedAuth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/fedAuth/internal/audit"
)

// DefaultTokenScopes are requested by [Facade.AccessToken] when the caller
// passes none.
var DefaultTokenScopes = []string{"User.Read"}

const guestDisplayName = "Guest"

// Facade is the process-wide authentication state for every consumer sharing
// one [IdentityProvider].
//
// All state mutations happen on a single internal goroutine fed by
// per-category mailboxes; accessors return copies and are safe for
// concurrent use.
type Facade struct {
	config   Config
	provider IdentityProvider
	logger   *slog.Logger
	audit    *internalaudit.Dispatcher
	metrics  *Metrics

	mu          sync.RWMutex
	state       Session
	watchers    map[uint64]chan Session
	nextWatcher uint64
	closed      bool

	redirectCh chan redirectMsg
	settleCh   chan struct{}
	// sessionCh carries provider events and popup results in arrival order.
	sessionCh chan sessionMsg

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Close cancels the provider subscriptions, stops the session loop, closes
// every watcher channel and flushes the audit dispatcher. It is safe to call
// more than once.
func (f *Facade) Close() {
	if f == nil {
		return
	}
	f.closeOnce.Do(func() {
		close(f.done)
		f.cancel()
		f.wg.Wait()
		f.closeWatchers()
		f.audit.Close()
	})
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (f *Facade) AuditDropped() uint64 {
	if f == nil {
		return 0
	}
	return f.audit.Dropped()
}

// MetricsSnapshot returns a copy of the facade counters.
func (f *Facade) MetricsSnapshot() MetricsSnapshot {
	if f == nil || f.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]time.Duration{},
		}
	}
	return f.metrics.Snapshot()
}

func (f *Facade) metricInc(id MetricID) {
	if f == nil || f.metrics == nil {
		return
	}
	f.metrics.Inc(id)
}

func (f *Facade) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

/*
====================================
SESSION CONTROL
====================================
*/

// Login starts an interactive redirect login with the configured scopes. The
// returned error covers initiation only; the outcome reaches the session
// through the redirect result and the provider's events.
func (f *Facade) Login(ctx context.Context) error {
	if f.isClosed() {
		return ErrFacadeClosed
	}
	cid := correlationID(ctx)
	ctx = WithCorrelationID(ctx, cid)

	err := f.provider.LoginRedirect(ctx, LoginRequest{
		Scopes:        slices.Clone(f.config.Login.Scopes),
		Prompt:        f.config.Login.Prompt,
		CorrelationID: cid,
	})
	if err != nil {
		f.metricInc(MetricProviderError)
		f.logger.ErrorContext(ctx, "login redirect failed", slog.String("correlation_id", cid), slog.Any("error", err))
		f.emitAudit(ctx, auditEventLoginRedirectStarted, false, nil, err, nil)
		return err
	}

	f.metricInc(MetricLoginRedirectStarted)
	f.emitAudit(ctx, auditEventLoginRedirectStarted, true, nil, nil, nil)
	return nil
}

// LoginPopup runs an interactive popup login and waits until the resulting
// account has been applied to the session. Provider failures are returned
// wrapped in [ErrLoginPopupFailed] and leave the session unchanged.
func (f *Facade) LoginPopup(ctx context.Context) (*UserProfile, error) {
	if f.isClosed() {
		return nil, ErrFacadeClosed
	}
	cid := correlationID(ctx)
	ctx = WithCorrelationID(ctx, cid)

	result, err := f.provider.LoginPopup(ctx, LoginRequest{
		Scopes:        slices.Clone(f.config.Login.Scopes),
		Prompt:        f.config.Login.Prompt,
		CorrelationID: cid,
	})
	if err != nil {
		f.metricInc(MetricPopupFailure)
		f.logger.ErrorContext(ctx, "login popup failed", slog.String("correlation_id", cid), slog.Any("error", err))
		f.emitAudit(ctx, auditEventLoginPopupFailure, false, nil, err, nil)
		return nil, fmt.Errorf("%w: %w", ErrLoginPopupFailed, err)
	}
	if result == nil || result.Account == nil {
		f.metricInc(MetricPopupFailure)
		f.emitAudit(ctx, auditEventLoginPopupFailure, false, nil, ErrLoginPopupNoAccount, nil)
		return nil, ErrLoginPopupNoAccount
	}

	ack := make(chan error, 1)
	msg := sessionMsg{kind: msgLogin, account: result.Account, ack: ack}
	select {
	case f.sessionCh <- msg:
	case <-f.done:
		return nil, ErrFacadeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-ack:
		if err != nil {
			f.metricInc(MetricPopupFailure)
			f.emitAudit(ctx, auditEventLoginPopupFailure, false, result.Account, err, nil)
			return nil, fmt.Errorf("%w: %w", ErrLoginPopupFailed, err)
		}
	case <-f.done:
		return nil, ErrFacadeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.metricInc(MetricPopupSuccess)
	f.emitAudit(ctx, auditEventLoginPopupSuccess, true, result.Account, nil, nil)
	return f.User(), nil
}

// Logout starts a redirect logout to the configured post-logout URI. The
// session is cleared when the provider reports logout success.
func (f *Facade) Logout(ctx context.Context) error {
	if f.isClosed() {
		return ErrFacadeClosed
	}
	cid := correlationID(ctx)
	ctx = WithCorrelationID(ctx, cid)

	err := f.provider.LogoutRedirect(ctx, LogoutRequest{
		PostLogoutRedirectURI: f.config.Login.PostLogoutRedirectURI,
		CorrelationID:         cid,
	})
	if err != nil {
		f.metricInc(MetricProviderError)
		f.logger.ErrorContext(ctx, "logout redirect failed", slog.String("correlation_id", cid), slog.Any("error", err))
		f.emitAudit(ctx, auditEventLogoutStarted, false, nil, err, nil)
		return err
	}

	f.metricInc(MetricLogoutStarted)
	f.emitAudit(ctx, auditEventLogoutStarted, true, nil, nil, nil)
	return nil
}

// AccessToken silently acquires an access token for the provider's active
// account. It never falls back to an interactive flow. Without an active
// account it returns [ErrNoActiveAccount] and makes no token request.
func (f *Facade) AccessToken(ctx context.Context, scopes ...string) (string, error) {
	if f.isClosed() {
		return "", ErrFacadeClosed
	}
	if len(scopes) == 0 {
		scopes = DefaultTokenScopes
	}
	cid := correlationID(ctx)
	ctx = WithCorrelationID(ctx, cid)

	account, err := f.provider.ActiveAccount(ctx)
	if err != nil {
		f.metricInc(MetricProviderError)
		f.logger.ErrorContext(ctx, "active account lookup failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if account == nil {
		f.metricInc(MetricTokenNoAccount)
		return "", ErrNoActiveAccount
	}

	start := time.Now()
	result, err := f.provider.AcquireTokenSilent(ctx, SilentRequest{
		Scopes:        slices.Clone(scopes),
		Account:       account,
		CorrelationID: cid,
	})
	f.metrics.Observe(MetricTokenLatency, time.Since(start))
	if err != nil {
		f.metricInc(MetricTokenSilentFailure)
		f.logger.WarnContext(ctx, "silent token acquisition failed",
			slog.String("correlation_id", cid),
			slog.Any("scopes", scopes),
			slog.Any("error", err),
		)
		f.emitAudit(ctx, auditEventTokenSilentFailure, false, account, err, func() map[string]string {
			return map[string]string{"scopes": joinScopes(scopes)}
		})
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if result == nil || result.AccessToken == "" {
		f.metricInc(MetricTokenSilentFailure)
		return "", ErrTokenUnavailable
	}

	return result.AccessToken, nil
}

// Account returns the provider's active account, or nil when there is none
// or the provider fails.
func (f *Facade) Account(ctx context.Context) *Account {
	account, err := f.provider.ActiveAccount(ctx)
	if err != nil {
		f.metricInc(MetricProviderError)
		f.logger.ErrorContext(ctx, "active account lookup failed", slog.Any("error", err))
		return nil
	}
	return account
}

/*
====================================
SNAPSHOT ACCESSORS
====================================
*/

// Session returns a copy of the current state.
func (f *Facade) Session() Session {
	if f == nil {
		return Session{}
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.clone()
}

func (f *Facade) IsAuthenticated() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.IsAuthenticated
}

func (f *Facade) IsLoading() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.IsLoading
}

// User returns a copy of the current profile, or nil when unauthenticated.
func (f *Facade) User() *UserProfile {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.User.clone()
}

// DisplayName returns the profile name, or "Guest" when unauthenticated.
func (f *Facade) DisplayName() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state.User == nil {
		return guestDisplayName
	}
	return f.state.User.Name
}

// HasRole reports whether the current profile carries role. Matching is
// case-sensitive.
func (f *Facade) HasRole(role string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state.User == nil {
		return false
	}
	return slices.Contains(f.state.User.Roles, role)
}

// HasAnyRole reports whether the current profile carries at least one of
// roles. An empty list never matches.
func (f *Facade) HasAnyRole(roles ...string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state.User == nil {
		return false
	}
	for _, role := range roles {
		if slices.Contains(f.state.User.Roles, role) {
			return true
		}
	}
	return false
}
