package fedAuth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	auditEventSessionAuthenticated = "session_authenticated"
	auditEventSessionCleared       = "session_cleared"
	auditEventLoginRedirectStarted = "login_redirect_started"
	auditEventLoginPopupSuccess    = "login_popup_success"
	auditEventLoginPopupFailure    = "login_popup_failure"
	auditEventLogoutStarted        = "logout_started"
	auditEventRedirectFailure      = "redirect_failure"
	auditEventTokenSilentFailure   = "token_silent_failure"
	auditEventReconcileFailure     = "reconcile_failure"
	auditEventLoginFailureEvent    = "login_failure_event"
)

// AuditErrorCode is the coarse error classification stamped on audit events.
// Raw provider messages are never recorded.
type AuditErrorCode string

const (
	auditErrNoActiveAccount  AuditErrorCode = "no_active_account"
	auditErrTokenUnavailable AuditErrorCode = "token_unavailable"
	auditErrPopupNoAccount   AuditErrorCode = "popup_no_account"
	auditErrCanceled         AuditErrorCode = "canceled"
	auditErrTimeout          AuditErrorCode = "timeout"
	auditErrProvider         AuditErrorCode = "provider_error"
)

func (f *Facade) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	account *Account,
	err error,
	metadataBuilder func() map[string]string,
) {
	if f == nil || f.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Success:   success,
		Metadata:  metadata,
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		event.CorrelationID = id
	}
	if account != nil {
		event.AccountID = account.HomeAccountID
		event.TenantID = account.TenantID
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	f.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoActiveAccount):
		return auditErrNoActiveAccount
	case errors.Is(err, ErrTokenUnavailable):
		return auditErrTokenUnavailable
	case errors.Is(err, ErrLoginPopupNoAccount):
		return auditErrPopupNoAccount
	case errors.Is(err, context.Canceled):
		return auditErrCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	default:
		return auditErrProvider
	}
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
