package providertest

import (
	"context"
	"slices"
	"sync"
	"time"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/internal/broadcast"
)

// Method names accepted by [Provider.Calls].
const (
	CallActiveAccount        = "ActiveAccount"
	CallAllAccounts          = "AllAccounts"
	CallSetActiveAccount     = "SetActiveAccount"
	CallAcquireTokenSilent   = "AcquireTokenSilent"
	CallLoginRedirect        = "LoginRedirect"
	CallLoginPopup           = "LoginPopup"
	CallLogoutRedirect       = "LogoutRedirect"
	CallHandleRedirectResult = "HandleRedirectResult"
)

const streamBuffer = 64

// Provider is a fake identity provider. The zero value is not usable; call
// [New].
type Provider struct {
	mu sync.Mutex

	accounts []fedAuth.Account
	active   *fedAuth.Account

	redirectResult *fedAuth.AuthenticationResult
	redirectErr    error
	redirectGate   chan struct{}

	accountsGate chan struct{}

	allAccountsErr   error
	activeErr        error
	setActiveErr     error
	silentResult     *fedAuth.AuthenticationResult
	silentErr        error
	popupResult      *fedAuth.AuthenticationResult
	popupErr         error
	loginRedirectErr error
	logoutErr        error

	lastLogin   *fedAuth.LoginRequest
	lastLogout  *fedAuth.LogoutRequest
	lastSilent  *fedAuth.SilentRequest
	setActiveOn []string

	calls map[string]int

	statuses *broadcast.Hub[fedAuth.InteractionStatus]
	events   *broadcast.Hub[fedAuth.Event]
}

var _ fedAuth.IdentityProvider = (*Provider)(nil)

// New returns a provider with no accounts whose interaction status is
// startup.
func New() *Provider {
	return &Provider{
		calls:    map[string]int{},
		statuses: broadcast.NewWithInitial(streamBuffer, fedAuth.InteractionStartup),
		events:   broadcast.New[fedAuth.Event](streamBuffer, false),
	}
}

/*
====================================
SCRIPTING
====================================
*/

// SetAccounts replaces the account list.
func (p *Provider) SetAccounts(accounts ...fedAuth.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = slices.Clone(accounts)
}

// SetActive sets the active account without counting a call.
func (p *Provider) SetActive(account *fedAuth.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = cloneAccount(account)
}

// SetRedirectResult scripts HandleRedirectResult.
func (p *Provider) SetRedirectResult(result *fedAuth.AuthenticationResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirectResult = result
	p.redirectErr = err
}

// HoldRedirect makes HandleRedirectResult block until [Provider.ReleaseRedirect]
// or until its context is cancelled.
func (p *Provider) HoldRedirect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.redirectGate == nil {
		p.redirectGate = make(chan struct{})
	}
}

func (p *Provider) ReleaseRedirect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.redirectGate != nil {
		close(p.redirectGate)
		p.redirectGate = nil
	}
}

// HoldAllAccounts makes AllAccounts block until [Provider.ReleaseAllAccounts]
// or until its context is cancelled.
func (p *Provider) HoldAllAccounts() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accountsGate == nil {
		p.accountsGate = make(chan struct{})
	}
}

func (p *Provider) ReleaseAllAccounts() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accountsGate != nil {
		close(p.accountsGate)
		p.accountsGate = nil
	}
}

func (p *Provider) FailAllAccounts(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allAccountsErr = err
}

func (p *Provider) FailActiveAccount(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeErr = err
}

func (p *Provider) FailSetActiveAccount(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setActiveErr = err
}

func (p *Provider) SetSilentResult(result *fedAuth.AuthenticationResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silentResult = result
	p.silentErr = err
}

func (p *Provider) SetPopupResult(result *fedAuth.AuthenticationResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.popupResult = result
	p.popupErr = err
}

func (p *Provider) FailLoginRedirect(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginRedirectErr = err
}

func (p *Provider) FailLogoutRedirect(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logoutErr = err
}

// EmitStatus publishes an interaction status to every subscriber.
func (p *Provider) EmitStatus(status fedAuth.InteractionStatus) {
	p.statuses.Publish(status)
}

// Settle publishes InteractionNone.
func (p *Provider) Settle() {
	p.statuses.Publish(fedAuth.InteractionNone)
}

// EmitEvent publishes ev, stamping a timestamp when missing.
func (p *Provider) EmitEvent(ev fedAuth.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	p.events.Publish(ev)
}

// EmitLoginSuccess publishes a login-success event for account.
func (p *Provider) EmitLoginSuccess(account *fedAuth.Account) {
	p.EmitEvent(fedAuth.Event{
		Type:        fedAuth.EventLoginSuccess,
		Interaction: fedAuth.InteractionTypeRedirect,
		Payload:     &fedAuth.AuthenticationResult{Account: cloneAccount(account)},
	})
}

// EmitLogoutSuccess publishes a logout-success event.
func (p *Provider) EmitLogoutSuccess() {
	p.EmitEvent(fedAuth.Event{Type: fedAuth.EventLogoutSuccess, Interaction: fedAuth.InteractionTypeRedirect})
}

// StatusSubscribers reports live interaction-status subscriptions.
func (p *Provider) StatusSubscribers() int {
	return p.statuses.Subscribers()
}

// EventSubscribers reports live event subscriptions.
func (p *Provider) EventSubscribers() int {
	return p.events.Subscribers()
}

// Close closes both streams.
func (p *Provider) Close() {
	p.statuses.Close()
	p.events.Close()
}

/*
====================================
INSPECTION
====================================
*/

// Calls reports how many times method was invoked.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// Active returns the current active account.
func (p *Provider) Active() *fedAuth.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneAccount(p.active)
}

// SetActiveHistory lists the home account ids passed to SetActiveAccount.
func (p *Provider) SetActiveHistory() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.setActiveOn)
}

func (p *Provider) LastLoginRequest() *fedAuth.LoginRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLogin
}

func (p *Provider) LastLogoutRequest() *fedAuth.LogoutRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLogout
}

func (p *Provider) LastSilentRequest() *fedAuth.SilentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSilent
}

/*
====================================
IDENTITY PROVIDER
====================================
*/

func (p *Provider) ActiveAccount(ctx context.Context) (*fedAuth.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[CallActiveAccount]++
	if p.activeErr != nil {
		return nil, p.activeErr
	}
	return cloneAccount(p.active), nil
}

func (p *Provider) AllAccounts(ctx context.Context) ([]fedAuth.Account, error) {
	p.mu.Lock()
	p.calls[CallAllAccounts]++
	gate := p.accountsGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allAccountsErr != nil {
		return nil, p.allAccountsErr
	}
	return slices.Clone(p.accounts), nil
}

func (p *Provider) SetActiveAccount(ctx context.Context, account *fedAuth.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[CallSetActiveAccount]++
	if p.setActiveErr != nil {
		return p.setActiveErr
	}
	p.active = cloneAccount(account)
	if account != nil {
		p.setActiveOn = append(p.setActiveOn, account.HomeAccountID)
	}
	return nil
}

func (p *Provider) AcquireTokenSilent(ctx context.Context, req fedAuth.SilentRequest) (*fedAuth.AuthenticationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[CallAcquireTokenSilent]++
	p.lastSilent = &req
	if p.silentErr != nil {
		return nil, p.silentErr
	}
	return p.silentResult, nil
}

func (p *Provider) LoginRedirect(ctx context.Context, req fedAuth.LoginRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[CallLoginRedirect]++
	p.lastLogin = &req
	return p.loginRedirectErr
}

func (p *Provider) LoginPopup(ctx context.Context, req fedAuth.LoginRequest) (*fedAuth.AuthenticationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[CallLoginPopup]++
	p.lastLogin = &req
	if p.popupErr != nil {
		return nil, p.popupErr
	}
	return p.popupResult, nil
}

func (p *Provider) LogoutRedirect(ctx context.Context, req fedAuth.LogoutRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[CallLogoutRedirect]++
	p.lastLogout = &req
	return p.logoutErr
}

func (p *Provider) HandleRedirectResult(ctx context.Context) (*fedAuth.AuthenticationResult, error) {
	p.mu.Lock()
	p.calls[CallHandleRedirectResult]++
	gate := p.redirectGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.redirectResult, p.redirectErr
}

func (p *Provider) InteractionStatus(ctx context.Context) <-chan fedAuth.InteractionStatus {
	return p.statuses.Subscribe(ctx)
}

func (p *Provider) Events(ctx context.Context) <-chan fedAuth.Event {
	return p.events.Subscribe(ctx)
}

func cloneAccount(a *fedAuth.Account) *fedAuth.Account {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}
