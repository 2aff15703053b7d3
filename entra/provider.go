package entra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/accountcache"
	"github.com/MrEthical07/fedAuth/internal/broadcast"
)

const (
	streamBuffer     = 64
	redirectQueueCap = 16
)

// Provider is an OpenID Connect identity provider backed by an
// accountcache.Cache.
type Provider struct {
	config   Config
	issuer   string
	logger   *slog.Logger
	cache    accountcache.Cache
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config

	endSessionURL string

	statuses *broadcast.Hub[fedAuth.InteractionStatus]
	events   *broadcast.Hub[fedAuth.Event]
	pending  *pendingStore
	refresh  singleflight.Group

	mu        sync.Mutex
	redirects []loginOutcome

	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once
}

var _ fedAuth.IdentityProvider = (*Provider)(nil)

// New discovers the issuer's endpoints and returns a Provider whose
// interaction status is startup.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	issuer := cfg.issuer()

	discovered, err := oidc.NewProvider(oidc.ClientContext(ctx, cfg.HTTPClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("entra: discover %s: %w", issuer, err)
	}

	var extra struct {
		EndSession string `json:"end_session_endpoint"`
	}
	if err := discovered.Claims(&extra); err != nil {
		return nil, fmt.Errorf("entra: decode discovery document: %w", err)
	}

	p := &Provider{
		config:   cfg,
		issuer:   issuer,
		logger:   cfg.Logger.With("component", "entra"),
		cache:    cfg.Cache,
		verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     discovered.Endpoint(),
			RedirectURL:  cfg.RedirectURI,
		},
		endSessionURL: extra.EndSession,
		statuses:      broadcast.NewWithInitial(streamBuffer, fedAuth.InteractionStartup),
		events:        broadcast.New[fedAuth.Event](streamBuffer, false),
		now:           time.Now,
		done:          make(chan struct{}),
	}
	p.pending = newPendingStore(cfg.StateTTL, p.expireLogins)
	return p, nil
}

// Close stops the pending-login janitor and closes every subscription.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.pending.close()
		p.statuses.Close()
		p.events.Close()
	})
}

func (p *Provider) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Provider) InteractionStatus(ctx context.Context) <-chan fedAuth.InteractionStatus {
	return p.statuses.Subscribe(ctx)
}

func (p *Provider) Events(ctx context.Context) <-chan fedAuth.Event {
	return p.events.Subscribe(ctx)
}

func (p *Provider) setStatus(status fedAuth.InteractionStatus) {
	p.statuses.Publish(status)
}

// settle returns the status to none, or to login while other logins are
// still waiting for their callback.
func (p *Provider) settle() {
	if p.pending.len() > 0 {
		p.setStatus(fedAuth.InteractionLogin)
		return
	}
	p.setStatus(fedAuth.InteractionNone)
}

func (p *Provider) emit(typ fedAuth.EventType, interaction fedAuth.InteractionType, payload *fedAuth.AuthenticationResult, err error) {
	p.events.Publish(fedAuth.Event{
		Type:        typ,
		Interaction: interaction,
		Payload:     payload,
		Err:         err,
		Timestamp:   p.now(),
	})
}

func (p *Provider) expireLogins(expired []*pendingLogin, remaining int) {
	for _, login := range expired {
		p.logger.Warn("login expired before callback",
			slog.String("correlation_id", login.correlationID),
			slog.String("interaction", string(login.interaction)),
		)
		p.emit(fedAuth.EventLoginFailure, login.interaction, nil, ErrUnknownState)
		if login.waiter != nil {
			login.waiter <- loginOutcome{err: ErrUnknownState}
		}
	}
	if remaining == 0 {
		p.setStatus(fedAuth.InteractionNone)
	}
}

/*
====================================
ACCOUNTS
====================================
*/

func (p *Provider) ActiveAccount(ctx context.Context) (*fedAuth.Account, error) {
	home, err := p.cache.Active(ctx)
	if err != nil {
		return nil, err
	}
	if home == "" {
		return nil, nil
	}
	rec, err := p.cache.Account(ctx, home)
	if err != nil {
		if errors.Is(err, accountcache.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return accountFromRecord(rec), nil
}

func (p *Provider) AllAccounts(ctx context.Context) ([]fedAuth.Account, error) {
	records, err := p.cache.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]fedAuth.Account, 0, len(records))
	for i := range records {
		out = append(out, *accountFromRecord(&records[i]))
	}
	return out, nil
}

// SetActiveAccount marks account active. A nil account clears the pointer;
// an account that is not cached is rejected.
func (p *Provider) SetActiveAccount(ctx context.Context, account *fedAuth.Account) error {
	if account == nil {
		return p.cache.SetActive(ctx, "")
	}
	if _, err := p.cache.Account(ctx, account.HomeAccountID); err != nil {
		return fmt.Errorf("entra: set active account %q: %w", account.HomeAccountID, err)
	}
	return p.cache.SetActive(ctx, account.HomeAccountID)
}

// HandleRedirectResult returns the oldest completed redirect login not yet
// collected, or nil when there is none.
func (p *Provider) HandleRedirectResult(ctx context.Context) (*fedAuth.AuthenticationResult, error) {
	if p.closed() {
		return nil, ErrClosed
	}
	p.setStatus(fedAuth.InteractionHandleRedirect)
	defer func() {
		p.emit(fedAuth.EventHandleRedirectEnd, fedAuth.InteractionTypeRedirect, nil, nil)
		p.settle()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.redirects) == 0 {
		return nil, nil
	}
	out := p.redirects[0]
	p.redirects = p.redirects[1:]
	return out.result, out.err
}

func (p *Provider) queueRedirect(out loginOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.redirects) == redirectQueueCap {
		p.redirects = p.redirects[1:]
	}
	p.redirects = append(p.redirects, out)
}
