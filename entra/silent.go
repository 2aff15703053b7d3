package entra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/accountcache"
)

const refreshTimeout = 30 * time.Second

// AcquireTokenSilent returns a cached access token covering req.Scopes or
// redeems the account's refresh token. It never prompts; when no refresh
// token is usable it returns an error wrapping [ErrInteractionRequired].
// Concurrent refreshes for one account and scope set share a single request.
func (p *Provider) AcquireTokenSilent(ctx context.Context, req fedAuth.SilentRequest) (*fedAuth.AuthenticationResult, error) {
	if p.closed() {
		return nil, ErrClosed
	}
	account := req.Account
	if account == nil {
		active, err := p.ActiveAccount(ctx)
		if err != nil {
			return nil, err
		}
		account = active
	}
	if account == nil {
		p.emit(fedAuth.EventAcquireTokenFailure, fedAuth.InteractionTypeSilent, nil, ErrNoAccount)
		return nil, ErrNoAccount
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = p.config.DefaultScopes
	}

	if !req.ForceRefresh {
		tok, err := p.cache.Token(ctx, account.HomeAccountID, scopes)
		switch {
		case err == nil && !tok.Expired(p.now(), p.config.TokenSkew):
			result := p.tokenResult(account, tok.AccessToken, tok.Scopes, time.Unix(tok.ExpiresAt, 0), req.CorrelationID)
			p.emit(fedAuth.EventAcquireTokenSuccess, fedAuth.InteractionTypeSilent, result, nil)
			return result, nil
		case err != nil && !errors.Is(err, accountcache.ErrNotFound):
			p.logger.WarnContext(ctx, "token cache lookup failed", slog.Any("error", err))
		}
	}

	key := account.HomeAccountID + "|" + accountcache.ScopeKey(scopes)
	ch := p.refresh.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return p.redeemRefreshToken(rctx, account.HomeAccountID, scopes)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			p.logger.WarnContext(ctx, "silent token refresh failed",
				slog.String("correlation_id", req.CorrelationID),
				slog.String("home_account_id", account.HomeAccountID),
				slog.Any("error", res.Err),
			)
			p.emit(fedAuth.EventAcquireTokenFailure, fedAuth.InteractionTypeSilent, nil, res.Err)
			return nil, res.Err
		}
		tok := res.Val.(*accountcache.TokenEntry)
		result := p.tokenResult(account, tok.AccessToken, tok.Scopes, time.Unix(tok.ExpiresAt, 0), req.CorrelationID)
		p.emit(fedAuth.EventAcquireTokenSuccess, fedAuth.InteractionTypeSilent, result, nil)
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// redeemRefreshToken exchanges the cached refresh token and caches the new
// tokens. The token endpoint decides the granted scopes from the original
// consent.
func (p *Provider) redeemRefreshToken(ctx context.Context, home string, scopes []string) (*accountcache.TokenEntry, error) {
	rec, err := p.cache.Account(ctx, home)
	if err != nil {
		if errors.Is(err, accountcache.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %q is not cached", ErrInteractionRequired, home)
		}
		return nil, err
	}
	if rec.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrInteractionRequired)
	}

	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, p.config.HTTPClient)
	cfg := p.oauth
	cfg.Scopes = scopes
	token, err := cfg.TokenSource(clientCtx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return nil, fmt.Errorf("%w: %w", ErrInteractionRequired, err)
		}
		return nil, fmt.Errorf("entra: refresh token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token endpoint returned no access token", ErrInteractionRequired)
	}

	if token.RefreshToken != "" {
		rec.RefreshToken = token.RefreshToken
	}
	if rawID, ok := token.Extra("id_token").(string); ok && rawID != "" {
		rec.IDToken = rawID
	}
	if err := p.cache.SaveAccount(ctx, rec); err != nil {
		return nil, err
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = p.now().Add(time.Hour)
	}
	entry := &accountcache.TokenEntry{
		AccessToken: token.AccessToken,
		Scopes:      grantedScopes(token.Extra("scope"), scopes),
		ExpiresAt:   expiry.Unix(),
	}
	if err := p.cache.SaveToken(ctx, home, entry); err != nil {
		p.logger.WarnContext(ctx, "access token not cached", slog.Any("error", err))
	}
	return entry, nil
}

func (p *Provider) tokenResult(account *fedAuth.Account, accessToken string, scopes []string, expires time.Time, correlationID string) *fedAuth.AuthenticationResult {
	out := *account
	return &fedAuth.AuthenticationResult{
		Account:       &out,
		AccessToken:   accessToken,
		IDToken:       account.IDToken,
		Scopes:        append([]string(nil), scopes...),
		ExpiresOn:     expires,
		CorrelationID: correlationID,
	}
}
