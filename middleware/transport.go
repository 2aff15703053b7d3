package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TokenSource acquires access tokens without user interaction.
type TokenSource interface {
	AccessToken(ctx context.Context, scopes ...string) (string, error)
}

// ProtectedResource maps a URL prefix to the scopes its token needs.
type ProtectedResource struct {
	Prefix string
	Scopes []string
}

// DefaultProtectedResources covers the Microsoft Graph profile endpoint.
var DefaultProtectedResources = []ProtectedResource{
	{Prefix: "https://graph.microsoft.com/v1.0/me", Scopes: []string{"User.Read"}},
}

// Transport is an http.RoundTripper that adds a bearer token to requests for
// protected resources. Other requests pass through untouched.
type Transport struct {
	Base      http.RoundTripper
	Tokens    TokenSource
	Resources []ProtectedResource
}

// NewTransport wraps base (http.DefaultTransport when nil) with the default
// protected resources.
func NewTransport(base http.RoundTripper, tokens TokenSource) *Transport {
	return &Transport{Base: base, Tokens: tokens, Resources: DefaultProtectedResources}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	res, ok := t.match(req)
	if !ok || t.Tokens == nil || req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}

	token, err := t.Tokens.AccessToken(req.Context(), res.Scopes...)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("acquire token for %s: %w", res.Prefix, err)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(out)
}

// match returns the resource with the longest prefix matching req. A prefix
// matches only at a path boundary.
func (t *Transport) match(req *http.Request) (ProtectedResource, bool) {
	if req.URL == nil {
		return ProtectedResource{}, false
	}
	target := req.URL.Scheme + "://" + req.URL.Host + req.URL.EscapedPath()

	var best ProtectedResource
	found := false
	for _, r := range t.Resources {
		prefix := strings.TrimRight(r.Prefix, "/")
		if !strings.HasPrefix(target, prefix) {
			continue
		}
		if rest := target[len(prefix):]; rest != "" && rest[0] != '/' {
			continue
		}
		if !found || len(prefix) > len(best.Prefix) {
			best = ProtectedResource{Prefix: prefix, Scopes: r.Scopes}
			found = true
		}
	}
	return best, found
}
