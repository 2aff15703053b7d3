package entra

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/accountcache"
)

var popupDonePage = template.Must(template.New("popup").Parse(`<!doctype html>
<html><head><title>Signed in</title></head>
<body><p>{{.}}</p><script>window.close()</script></body></html>
`))

// LoginRedirect starts an authorization-code login and navigates to the
// authorization endpoint. The outcome arrives at [Provider.CallbackHandler].
func (p *Provider) LoginRedirect(ctx context.Context, req fedAuth.LoginRequest) error {
	_, err := p.startLogin(ctx, req, fedAuth.InteractionTypeRedirect)
	return err
}

// LoginPopup starts a login and blocks until its callback completes, the
// login expires, or ctx is done.
func (p *Provider) LoginPopup(ctx context.Context, req fedAuth.LoginRequest) (*fedAuth.AuthenticationResult, error) {
	login, err := p.startLogin(ctx, req, fedAuth.InteractionTypePopup)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-login.waiter:
		return out.result, out.err
	case <-ctx.Done():
		p.pending.remove(login.state)
		p.emit(fedAuth.EventLoginFailure, fedAuth.InteractionTypePopup, nil, ctx.Err())
		p.settle()
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

func (p *Provider) startLogin(ctx context.Context, req fedAuth.LoginRequest, interaction fedAuth.InteractionType) (*pendingLogin, error) {
	if p.closed() {
		return nil, ErrClosed
	}
	p.setStatus(fedAuth.InteractionLogin)

	login := &pendingLogin{
		state:         uuid.NewString(),
		nonce:         uuid.NewString(),
		verifier:      oauth2.GenerateVerifier(),
		scopes:        requestScopes(req.Scopes, p.config.DefaultScopes),
		interaction:   interaction,
		correlationID: req.CorrelationID,
		created:       p.now(),
	}
	if interaction == fedAuth.InteractionTypePopup {
		login.waiter = make(chan loginOutcome, 1)
	}
	p.pending.put(login)

	target := p.authCodeURL(login, req)
	if err := p.config.Navigator.Navigate(ctx, target); err != nil {
		p.pending.remove(login.state)
		p.logger.ErrorContext(ctx, "login navigation failed",
			slog.String("correlation_id", req.CorrelationID),
			slog.Any("error", err),
		)
		p.emit(fedAuth.EventLoginFailure, interaction, nil, err)
		p.settle()
		return nil, fmt.Errorf("entra: navigate to authorization endpoint: %w", err)
	}
	return login, nil
}

func (p *Provider) authCodeURL(login *pendingLogin, req fedAuth.LoginRequest) string {
	cfg := p.oauth
	cfg.Scopes = login.scopes

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(login.verifier),
		oidc.Nonce(login.nonce),
	}
	if req.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}
	if req.CorrelationID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("client-request-id", req.CorrelationID))
	}
	return cfg.AuthCodeURL(login.state, opts...)
}

// CallbackHandler completes logins at the configured redirect URI. Redirect
// logins are sent on to PostLoginRedirectURI; popup logins get a page that
// closes itself.
func (p *Provider) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		login := p.pending.take(q.Get("state"))
		if login == nil {
			http.Error(w, ErrUnknownState.Error(), http.StatusBadRequest)
			return
		}
		ctx := fedAuth.WithCorrelationID(r.Context(), login.correlationID)
		p.setStatus(fedAuth.InteractionHandleRedirect)

		var result *fedAuth.AuthenticationResult
		var err error
		if code := q.Get("error"); code != "" {
			err = &AuthorizationError{Code: code, Description: q.Get("error_description")}
		} else {
			result, err = p.complete(ctx, login, q.Get("code"))
		}

		if err != nil {
			p.logger.WarnContext(ctx, "login callback failed",
				slog.String("correlation_id", login.correlationID),
				slog.Any("error", err),
			)
			p.emit(fedAuth.EventLoginFailure, login.interaction, nil, err)
		} else {
			p.logger.InfoContext(ctx, "login completed",
				slog.String("correlation_id", login.correlationID),
				slog.String("home_account_id", result.Account.HomeAccountID),
			)
			p.emit(fedAuth.EventLoginSuccess, login.interaction, result, nil)
		}
		p.settle()

		out := loginOutcome{result: result, err: err}
		if login.waiter != nil {
			login.waiter <- out
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				_ = popupDonePage.Execute(w, "Sign-in failed. You can close this window.")
				return
			}
			_ = popupDonePage.Execute(w, "Signed in. You can close this window.")
			return
		}

		p.queueRedirect(out)
		http.Redirect(w, r, p.config.PostLoginRedirectURI, http.StatusFound)
	})
}

// complete redeems code, verifies the ID token and caches the account.
func (p *Provider) complete(ctx context.Context, login *pendingLogin, code string) (*fedAuth.AuthenticationResult, error) {
	if code == "" {
		return nil, &AuthorizationError{Code: "missing_code"}
	}
	clientCtx := oidc.ClientContext(ctx, p.config.HTTPClient)

	cfg := p.oauth
	cfg.Scopes = login.scopes
	token, err := cfg.Exchange(clientCtx, code, oauth2.VerifierOption(login.verifier))
	if err != nil {
		return nil, fmt.Errorf("entra: redeem authorization code: %w", err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, ErrMissingIDToken
	}
	verified, err := p.verifier.Verify(clientCtx, rawID)
	if err != nil {
		return nil, fmt.Errorf("entra: verify id token: %w", err)
	}
	if verified.Nonce != login.nonce {
		return nil, ErrNonceMismatch
	}

	claims := map[string]any{}
	if err := verified.Claims(&claims); err != nil {
		return nil, fmt.Errorf("entra: decode id token claims: %w", err)
	}

	rec := recordFromClaims(p.issuer, rawID, verified.Subject, claims)
	rec.RefreshToken = token.RefreshToken
	rec.CachedAt = p.now().Unix()
	if err := p.cache.SaveAccount(ctx, rec); err != nil {
		return nil, err
	}

	scopes := grantedScopes(token.Extra("scope"), login.scopes)
	if token.AccessToken != "" && !token.Expiry.IsZero() {
		err := p.cache.SaveToken(ctx, rec.HomeAccountID, &accountcache.TokenEntry{
			AccessToken: token.AccessToken,
			Scopes:      scopes,
			ExpiresAt:   token.Expiry.Unix(),
		})
		if err != nil {
			p.logger.WarnContext(ctx, "access token not cached", slog.Any("error", err))
		}
	}
	if err := p.cache.SetActive(ctx, rec.HomeAccountID); err != nil {
		return nil, err
	}

	account := accountFromRecord(rec)
	account.IDTokenClaims = claims
	return &fedAuth.AuthenticationResult{
		Account:       account,
		AccessToken:   token.AccessToken,
		IDToken:       rawID,
		Scopes:        scopes,
		ExpiresOn:     token.Expiry,
		CorrelationID: login.correlationID,
	}, nil
}

// LogoutRedirect forgets req.Account (or every account when nil), then
// navigates to the issuer's end-session endpoint, or straight to the
// post-logout URI when the issuer has none.
func (p *Provider) LogoutRedirect(ctx context.Context, req fedAuth.LogoutRequest) error {
	if p.closed() {
		return ErrClosed
	}
	p.setStatus(fedAuth.InteractionLogout)
	defer p.settle()

	hint := ""
	if req.Account != nil {
		hint = req.Account.IDToken
	} else if active, err := p.ActiveAccount(ctx); err == nil && active != nil {
		hint = active.IDToken
	}

	var err error
	if req.Account != nil {
		err = p.cache.RemoveAccount(ctx, req.Account.HomeAccountID)
	} else {
		err = p.cache.RemoveAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("entra: clear account cache: %w", err)
	}
	p.emit(fedAuth.EventLogoutSuccess, fedAuth.InteractionTypeRedirect, nil, nil)

	target, err := p.logoutURL(req.PostLogoutRedirectURI, hint)
	if err != nil {
		return err
	}
	if err := p.config.Navigator.Navigate(ctx, target); err != nil {
		return fmt.Errorf("entra: navigate to end session endpoint: %w", err)
	}
	return nil
}

func (p *Provider) logoutURL(postLogout, idTokenHint string) (string, error) {
	redirect := ""
	if postLogout != "" {
		base, err := url.Parse(p.config.RedirectURI)
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(postLogout)
		if err != nil {
			return "", fmt.Errorf("entra: post logout redirect uri: %w", err)
		}
		redirect = base.ResolveReference(ref).String()
	}

	if p.endSessionURL == "" {
		if redirect == "" {
			return "/", nil
		}
		return redirect, nil
	}

	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return "", fmt.Errorf("entra: end session endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if redirect != "" {
		q.Set("post_logout_redirect_uri", redirect)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
