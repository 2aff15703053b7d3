package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/federation"
	"github.com/MrEthical07/fedAuth/internal/logging"
	"github.com/MrEthical07/fedAuth/internal/remotes"
	"github.com/MrEthical07/fedAuth/metrics/export/prometheus"
	"github.com/MrEthical07/fedAuth/providertest"
)

func newShell(t *testing.T, p *providertest.Provider) (*shell, *fedAuth.Facade) {
	t.Helper()
	var logs bytes.Buffer
	logger := logging.New(&logs, "error", "text")

	facade, err := fedAuth.New().WithProvider(p).WithLogger(logger).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build facade: %v", err)
	}
	t.Cleanup(facade.Close)

	scope := federation.NewScope(logger)
	if err := scope.Provide("msal", "3.0.0", p); err != nil {
		t.Fatalf("provide: %v", err)
	}
	products, err := remotes.New(scope, remotes.Options{Name: "products", ProviderName: "msal", Items: remotes.ProductItems})
	if err != nil {
		t.Fatalf("products remote: %v", err)
	}

	return &shell{
		facade:       facade,
		logger:       logger,
		callbackPath: "/auth/callback",
		callback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		metrics: prometheus.NewCollector(facade).Handler(),
		remotes: []*remotes.Remote{products},
	}, facade
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func do(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestShellSignedOut(t *testing.T) {
	p := providertest.New()
	defer p.Close()
	s, facade := newShell(t, p)
	p.Settle()
	waitFor(t, "settle", func() bool { return !facade.IsLoading() })
	h := s.router()

	if rec := do(h, "/"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Hello, Guest") {
		t.Fatalf("unexpected home %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(h, "/profile"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for profile, got %d", rec.Code)
	}
	if p.Calls(providertest.CallLoginRedirect) != 1 {
		t.Fatalf("expected the guard to start one login, got %d", p.Calls(providertest.CallLoginRedirect))
	}
	if rec := do(h, "/products/"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for remote, got %d", rec.Code)
	}
	if rec := do(h, "/auth/callback"); rec.Code != http.StatusTeapot {
		t.Fatalf("expected callback handler, got %d", rec.Code)
	}
}

func TestShellLoginFailureRedirects(t *testing.T) {
	p := providertest.New()
	defer p.Close()
	p.FailLoginRedirect(os.ErrDeadlineExceeded)
	s, _ := newShell(t, p)
	h := s.router()

	rec := do(h, "/login")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login-failed" {
		t.Fatalf("expected redirect to /login-failed, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec := do(h, "/login-failed"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 page, got %d", rec.Code)
	}
}

func TestShellSignedIn(t *testing.T) {
	p := providertest.New()
	defer p.Close()
	acct := providertest.Account("h1", "ada@example.com", "Ada", "Admin")
	p.SetAccounts(acct)
	s, facade := newShell(t, p)
	p.Settle()
	waitFor(t, "authenticated", func() bool { return facade.IsAuthenticated() && !facade.IsLoading() })
	h := s.router()

	rec := do(h, "/profile")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var profile map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile["name"] != "Ada" || profile["username"] != "ada@example.com" {
		t.Fatalf("unexpected profile %v", profile)
	}

	if rec := do(h, "/products/"); rec.Code != http.StatusOK {
		t.Fatalf("expected remote to see the shared account, got %d", rec.Code)
	}
	if rec := do(h, "/"); !strings.Contains(rec.Body.String(), "Hello, Ada") {
		t.Fatalf("unexpected home %q", rec.Body.String())
	}

	rec = do(h, "/logout")
	if rec.Code != http.StatusFound || p.Calls(providertest.CallLogoutRedirect) != 1 {
		t.Fatalf("expected logout redirect, got %d calls=%d", rec.Code, p.Calls(providertest.CallLogoutRedirect))
	}

	metrics := do(h, "/metrics").Body.String()
	if !strings.Contains(metrics, "fedauth_logout_started_total 1") {
		t.Fatalf("expected logout counter in metrics, got:\n%s", metrics)
	}
}

func TestShellProfileFetchesGraphWithBearerToken(t *testing.T) {
	p := providertest.New()
	defer p.Close()
	acct := providertest.Account("h1", "ada@example.com", "Ada")
	p.SetAccounts(acct)
	p.SetSilentResult(&fedAuth.AuthenticationResult{Account: &acct, AccessToken: "graph-token"}, nil)
	s, facade := newShell(t, p)
	p.Settle()
	waitFor(t, "authenticated", func() bool { return facade.IsAuthenticated() && !facade.IsLoading() })

	auth := make(chan string, 1)
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/me" {
			http.NotFound(w, r)
			return
		}
		auth <- r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"displayName":       "Ada Lovelace",
			"mail":              "ada@example.com",
			"jobTitle":          "Analyst",
			"officeLocation":    "London",
			"userPrincipalName": "ada@example.com",
		})
	}))
	defer graph.Close()
	s.graph = newGraphClient(facade, graph.URL, []string{"User.Read"})
	s.graphBase = graph.URL

	rec := do(s.router(), "/profile")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var profile profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if got := <-auth; got != "Bearer graph-token" {
		t.Fatalf("expected bearer token on graph call, got %q", got)
	}
	if profile.Graph == nil || profile.Graph.JobTitle != "Analyst" || profile.Graph.OfficeLocation != "London" {
		t.Fatalf("unexpected graph profile %+v", profile)
	}
	if got := p.LastSilentRequest(); got == nil || len(got.Scopes) != 1 || got.Scopes[0] != "User.Read" {
		t.Fatalf("unexpected silent request %+v", got)
	}
}

func TestShellProfileReportsGraphError(t *testing.T) {
	p := providertest.New()
	defer p.Close()
	acct := providertest.Account("h1", "ada@example.com", "Ada")
	p.SetAccounts(acct)
	p.SetSilentResult(nil, os.ErrPermission)
	s, facade := newShell(t, p)
	p.Settle()
	waitFor(t, "authenticated", func() bool { return facade.IsAuthenticated() && !facade.IsLoading() })

	var hits atomic.Int32
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer graph.Close()
	s.graph = newGraphClient(facade, graph.URL, []string{"User.Read"})
	s.graphBase = graph.URL

	rec := do(s.router(), "/profile")
	var profile profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if rec.Code != http.StatusOK || profile.Name != "Ada" {
		t.Fatalf("expected the session profile despite graph failure, got %d %+v", rec.Code, profile)
	}
	if profile.Graph != nil || profile.GraphError == "" {
		t.Fatalf("expected graph_error, got %+v", profile)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("graph must not be called without a token, got %d calls", n)
	}
}

func TestShellRoleGatedRemote(t *testing.T) {
	p := providertest.New()
	defer p.Close()
	p.SetAccounts(providertest.Account("h1", "ada@example.com", "Ada", "Products.Read"))
	s, facade := newShell(t, p)

	scope := federation.NewScope(s.logger)
	if err := scope.Provide("msal", "3.0.0", p); err != nil {
		t.Fatalf("provide: %v", err)
	}
	orders, err := remotes.New(scope, remotes.Options{
		Name:          "orders",
		ProviderName:  "msal",
		RequiredRoles: []string{"Orders.Read", "Admin"},
		Items:         remotes.OrderItems,
	})
	if err != nil {
		t.Fatalf("orders remote: %v", err)
	}
	s.remotes = append(s.remotes, orders)

	p.Settle()
	waitFor(t, "authenticated", func() bool { return facade.IsAuthenticated() && !facade.IsLoading() })
	h := s.router()

	if rec := do(h, "/orders/"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without an orders role, got %d", rec.Code)
	}
	if rec := do(h, "/products/"); rec.Code != http.StatusOK {
		t.Fatalf("expected ungated remote to answer, got %d", rec.Code)
	}

	p.EmitLoginSuccess(ptr(providertest.Account("h2", "grace@example.com", "Grace", "Admin")))
	waitFor(t, "account switch", func() bool { return facade.DisplayName() == "Grace" })
	if rec := do(h, "/orders/"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with the Admin role, got %d", rec.Code)
	}
}

func ptr[T any](v T) *T { return &v }

func TestConfigCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedauth.yaml")
	body := "entra:\n  tenant_id: contoso\n  client_id: app-1\n  client_secret: hush\n  redirect_uri: https://app.example/auth/callback\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "check", "--show", "-c", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out.String(), "configuration ok") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if strings.Contains(out.String(), "hush") {
		t.Fatal("client secret must be redacted")
	}
}

func TestConfigCheckRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedauth.yaml")
	if err := os.WriteFile(path, []byte("entra: {}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "check", "-c", path})
	if err := root.Execute(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCacheBenchAgainstMiniredis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"cachebench", "--accounts", "20", "--ops", "200", "--concurrency", "4"})
	if err := root.Execute(); err != nil {
		t.Fatalf("cachebench: %v", err)
	}
	for _, want := range []string{"using miniredis", "account: ops=200 failures=0", "token: ops=200 failures=0"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
}
