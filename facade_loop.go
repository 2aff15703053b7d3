package fedAuth

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/fedAuth/idtoken"
)

type redirectMsg struct {
	result *AuthenticationResult
}

type sessionMsgKind uint8

const (
	msgLogin sessionMsgKind = iota
	msgLogout
	msgTokenAcquired
	msgLoginFailure
)

// sessionMsg is one provider event, or a popup result, in arrival order.
// For msgLogin, ack (when set) receives the outcome once the session has been
// updated.
type sessionMsg struct {
	kind    sessionMsgKind
	account *Account
	ack     chan error
	event   Event
}

func (f *Facade) start() {
	statuses := f.provider.InteractionStatus(f.ctx)
	events := f.provider.Events(f.ctx)

	f.wg.Add(4)
	go f.run()
	go f.pumpInteractionStatus(statuses)
	go f.pumpEvents(events)
	go f.consumeRedirectResult()
}

// post delivers msg to ch unless the facade is closing.
func post[T any](f *Facade, ch chan<- T, msg T) bool {
	select {
	case ch <- msg:
		return true
	case <-f.done:
		return false
	}
}

func (f *Facade) consumeRedirectResult() {
	defer f.wg.Done()

	result, err := f.provider.HandleRedirectResult(f.ctx)
	if err != nil {
		if f.isClosed() {
			return
		}
		f.metricInc(MetricRedirectError)
		f.logger.Error("redirect result failed", slog.Any("error", err))
		f.emitAudit(f.ctx, auditEventRedirectFailure, false, nil, err, nil)
		return
	}
	if result != nil && result.Account != nil {
		f.metricInc(MetricRedirectResult)
	}
	post(f, f.redirectCh, redirectMsg{result: result})
}

// pumpInteractionStatus forwards a settle notification for every transition
// into InteractionNone. Repeated none values are collapsed.
func (f *Facade) pumpInteractionStatus(statuses <-chan InteractionStatus) {
	defer f.wg.Done()

	var prev InteractionStatus
	for {
		select {
		case <-f.done:
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			settled := status == InteractionNone && prev != InteractionNone
			prev = status
			if !settled {
				continue
			}
			if !post(f, f.settleCh, struct{}{}) {
				return
			}
		}
	}
}

func (f *Facade) pumpEvents(events <-chan Event) {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !f.routeEvent(ev) {
				return
			}
		}
	}
}

// routeEvent returns false only when the facade is closing.
func (f *Facade) routeEvent(ev Event) bool {
	switch ev.Type {
	case EventLoginSuccess:
		if ev.Payload == nil || ev.Payload.Account == nil {
			f.logger.Debug("login success event without account ignored")
			return true
		}
		return post(f, f.sessionCh, sessionMsg{kind: msgLogin, account: ev.Payload.Account})
	case EventLogoutSuccess:
		return post(f, f.sessionCh, sessionMsg{kind: msgLogout})
	case EventAcquireTokenSuccess:
		return post(f, f.sessionCh, sessionMsg{kind: msgTokenAcquired, event: ev})
	case EventLoginFailure:
		return post(f, f.sessionCh, sessionMsg{kind: msgLoginFailure, event: ev})
	default:
		return true
	}
}

// run is the only goroutine that mutates the session.
func (f *Facade) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		case msg := <-f.redirectCh:
			if msg.result != nil && msg.result.Account != nil {
				_ = f.setActiveAccount(f.ctx, msg.result.Account)
			}
			f.reconcile(f.ctx)
		case <-f.settleCh:
			f.metricInc(MetricInteractionSettled)
			f.reconcile(f.ctx)
			f.finishLoading()
		case msg := <-f.sessionCh:
			f.apply(msg)
		}
	}
}

// apply handles one message from the ordered session mailbox.
func (f *Facade) apply(msg sessionMsg) {
	switch msg.kind {
	case msgLogin:
		err := f.setActiveAccount(f.ctx, msg.account)
		if err == nil && msg.ack == nil {
			f.metricInc(MetricLoginSuccess)
		}
		if msg.ack != nil {
			msg.ack <- err
		}
	case msgLogout:
		f.metricInc(MetricLogoutSuccess)
		f.clearSession(f.ctx)
	case msgTokenAcquired:
		f.metricInc(MetricTokenAcquired)
		if result := msg.event.Payload; result != nil {
			f.logger.Debug("access token acquired",
				slog.Any("scopes", result.Scopes),
				slog.Time("expires_on", result.ExpiresOn),
			)
		}
	case msgLoginFailure:
		ev := msg.event
		f.metricInc(MetricLoginFailureEvent)
		f.logger.Warn("login failed", slog.String("interaction", string(ev.Interaction)), slog.Any("error", ev.Err))
		f.emitAudit(f.ctx, auditEventLoginFailureEvent, false, nil, ev.Err, func() map[string]string {
			return map[string]string{"interaction": string(ev.Interaction)}
		})
	}
}

// reconcile aligns the session with the provider's account list. Provider
// errors leave the session untouched.
func (f *Facade) reconcile(ctx context.Context) {
	accounts, err := f.provider.AllAccounts(ctx)
	if err != nil {
		if f.isClosed() {
			return
		}
		f.metricInc(MetricReconcileError)
		f.logger.Error("account reconciliation failed", slog.Any("error", err))
		f.emitAudit(ctx, auditEventReconcileFailure, false, nil, err, nil)
		return
	}
	f.metricInc(MetricReconcile)

	if len(accounts) == 0 {
		f.clearSession(ctx)
		return
	}

	active, err := f.provider.ActiveAccount(ctx)
	if err != nil {
		f.metricInc(MetricProviderError)
		f.logger.Warn("active account lookup failed during reconciliation", slog.Any("error", err))
		active = nil
	}
	if active == nil {
		first := accounts[0]
		active = &first
	}
	_ = f.setActiveAccount(ctx, active)
}

// setActiveAccount marks account active at the provider and replaces the
// profile. A nil account is ignored.
func (f *Facade) setActiveAccount(ctx context.Context, account *Account) error {
	if account == nil {
		return nil
	}
	if err := f.provider.SetActiveAccount(ctx, account); err != nil {
		f.metricInc(MetricProviderError)
		f.logger.Error("set active account failed", slog.Any("error", err))
		return err
	}

	profile := profileFromAccount(account)
	changed := f.update(func(s *Session) {
		s.IsAuthenticated = true
		s.User = profile
	})
	if changed {
		f.logger.Debug("session authenticated",
			slog.String("home_account_id", account.HomeAccountID),
			slog.String("username", account.Username),
		)
		f.emitAudit(ctx, auditEventSessionAuthenticated, true, account, nil, nil)
	}
	return nil
}

func (f *Facade) clearSession(ctx context.Context) {
	changed := f.update(func(s *Session) {
		s.IsAuthenticated = false
		s.User = nil
	})
	if changed {
		f.logger.Debug("session cleared")
		f.emitAudit(ctx, auditEventSessionCleared, true, nil, nil, nil)
	}
}

func (f *Facade) finishLoading() {
	f.update(func(s *Session) {
		s.IsLoading = false
	})
}

func profileFromAccount(account *Account) *UserProfile {
	name := account.Name
	if name == "" {
		name = account.Username
	}
	return &UserProfile{
		Name:     name,
		Email:    account.Username,
		Username: account.Username,
		TenantID: account.TenantID,
		Roles:    idtoken.Roles(account.IDTokenClaims),
	}
}
