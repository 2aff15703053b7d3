package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type fakeTokens struct {
	token  string
	err    error
	scopes []string
	calls  int
}

func (f *fakeTokens) AccessToken(ctx context.Context, scopes ...string) (string, error) {
	f.calls++
	f.scopes = scopes
	return f.token, f.err
}

func recordingBase(seen *http.Header) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		*seen = r.Header.Clone()
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusOK)
		return rec.Result(), nil
	})
}

func TestTransportAttachesTokenForProtectedResource(t *testing.T) {
	var seen http.Header
	tokens := &fakeTokens{token: "at-1"}
	tr := NewTransport(recordingBase(&seen), tokens)

	req := httptest.NewRequest(http.MethodGet, "https://graph.microsoft.com/v1.0/me/photo", nil)
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if seen.Get("Authorization") != "Bearer at-1" {
		t.Fatalf("expected bearer token, got %q", seen.Get("Authorization"))
	}
	if len(tokens.scopes) != 1 || tokens.scopes[0] != "User.Read" {
		t.Fatalf("unexpected scopes %v", tokens.scopes)
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatal("the caller's request must not be modified")
	}
}

func TestTransportSkipsUnprotectedAndNearMisses(t *testing.T) {
	var seen http.Header
	tokens := &fakeTokens{token: "at-1"}
	tr := NewTransport(recordingBase(&seen), tokens)

	for _, u := range []string{
		"https://example.com/api",
		"https://graph.microsoft.com/v1.0/messages",
	} {
		if _, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, u, nil)); err != nil {
			t.Fatalf("round trip %s: %v", u, err)
		}
		if seen.Get("Authorization") != "" {
			t.Fatalf("%s must not get a token", u)
		}
	}
	if tokens.calls != 0 {
		t.Fatalf("expected no token requests, got %d", tokens.calls)
	}
}

func TestTransportPrefersLongestPrefix(t *testing.T) {
	var seen http.Header
	tokens := &fakeTokens{token: "at-1"}
	tr := &Transport{
		Base:   recordingBase(&seen),
		Tokens: tokens,
		Resources: []ProtectedResource{
			{Prefix: "https://api.example.com/", Scopes: []string{"api://x/.default"}},
			{Prefix: "https://api.example.com/orders", Scopes: []string{"api://x/Orders.Read"}},
		},
	}
	if _, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, "https://api.example.com/orders/7", nil)); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if len(tokens.scopes) != 1 || tokens.scopes[0] != "api://x/Orders.Read" {
		t.Fatalf("unexpected scopes %v", tokens.scopes)
	}
}

func TestTransportPropagatesTokenError(t *testing.T) {
	var seen http.Header
	boom := errors.New("no account")
	tr := NewTransport(recordingBase(&seen), &fakeTokens{err: boom})

	_, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, "https://graph.microsoft.com/v1.0/me", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected token error, got %v", err)
	}
	if seen != nil {
		t.Fatal("request must not be sent without a token")
	}
}
