package internaldefs

import (
	fedAuth "github.com/MrEthical07/fedAuth"
)

// CounterDef names one facade counter for export.
type CounterDef struct {
	ID   fedAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one facade histogram for export.
type HistogramDef struct {
	ID   fedAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: fedAuth.MetricLoginSuccess, Name: "fedauth_login_success_total", Help: "Login-success events applied to the session."},
	{ID: fedAuth.MetricLoginFailureEvent, Name: "fedauth_login_failure_event_total", Help: "Login-failure events observed from the provider."},
	{ID: fedAuth.MetricLogoutSuccess, Name: "fedauth_logout_success_total", Help: "Logout-success events that cleared the session."},
	{ID: fedAuth.MetricLoginRedirectStarted, Name: "fedauth_login_redirect_started_total", Help: "Redirect logins initiated."},
	{ID: fedAuth.MetricLogoutStarted, Name: "fedauth_logout_started_total", Help: "Redirect logouts initiated."},
	{ID: fedAuth.MetricPopupSuccess, Name: "fedauth_popup_success_total", Help: "Popup logins that produced an account."},
	{ID: fedAuth.MetricPopupFailure, Name: "fedauth_popup_failure_total", Help: "Rejected popup logins."},
	{ID: fedAuth.MetricTokenAcquired, Name: "fedauth_token_acquired_total", Help: "Acquire-token-success events from the provider."},
	{ID: fedAuth.MetricTokenSilentFailure, Name: "fedauth_token_silent_failure_total", Help: "Failed silent token acquisitions."},
	{ID: fedAuth.MetricTokenNoAccount, Name: "fedauth_token_no_account_total", Help: "Token requests made without an active account."},
	{ID: fedAuth.MetricRedirectResult, Name: "fedauth_redirect_result_total", Help: "Non-empty redirect results."},
	{ID: fedAuth.MetricRedirectError, Name: "fedauth_redirect_error_total", Help: "Failed redirect-result handling."},
	{ID: fedAuth.MetricInteractionSettled, Name: "fedauth_interaction_settled_total", Help: "Interaction-settle notifications."},
	{ID: fedAuth.MetricReconcile, Name: "fedauth_reconcile_total", Help: "Completed account reconciliation passes."},
	{ID: fedAuth.MetricReconcileError, Name: "fedauth_reconcile_error_total", Help: "Reconciliation passes aborted by a provider error."},
	{ID: fedAuth.MetricSessionChanged, Name: "fedauth_session_changed_total", Help: "Session snapshot changes."},
	{ID: fedAuth.MetricProviderError, Name: "fedauth_provider_error_total", Help: "Other identity provider call failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: fedAuth.MetricTokenLatency, Name: "fedauth_token_latency_seconds", Help: "Silent token acquisition latency."},
}

// HistogramBoundSuffix renders the bucket bounds, +Inf last, for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// GaugeDef names one gauge derived from the current session.
type GaugeDef struct {
	Name  string
	Help  string
	Value func(fedAuth.Session) float64
}

// SessionGaugeDefs lists the gauges read from the session snapshot.
var SessionGaugeDefs = []GaugeDef{
	{Name: "fedauth_session_loading", Help: "1 while the session is loading.", Value: func(s fedAuth.Session) float64 { return boolValue(s.IsLoading) }},
	{Name: "fedauth_session_authenticated", Help: "1 while an account is active.", Value: func(s fedAuth.Session) float64 { return boolValue(s.IsAuthenticated) }},
	{Name: "fedauth_session_roles", Help: "Roles carried by the active account.", Value: func(s fedAuth.Session) float64 {
		if s.User == nil {
			return 0
		}
		return float64(len(s.User.Roles))
	}},
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
