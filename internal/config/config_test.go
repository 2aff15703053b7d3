package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
auth:
  login:
    scopes: [openid, profile, User.Read]
    post_logout_redirect_uri: /bye
  metrics:
    enabled: true
entra:
  tenant_id: contoso
  client_id: app-1
  redirect_uri: https://app.example/auth/callback
  state_ttl: 2m
redis:
  addr: localhost:6379
server:
  addr: ":9090"
federation:
  strict_version: true
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fedauth.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Entra.ClientID != "app-1" || cfg.Entra.StateTTL != 2*time.Minute {
		t.Fatalf("unexpected entra config %+v", cfg.Entra)
	}
	if got := cfg.Auth.Login.Scopes; len(got) != 3 || got[2] != "User.Read" {
		t.Fatalf("unexpected scopes %v", got)
	}
	if cfg.Auth.Login.PostLogoutRedirectURI != "/bye" || !cfg.Auth.Metrics.Enabled {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
	if cfg.Auth.Mailbox.BufferSize != 16 {
		t.Fatalf("expected default mailbox size to survive, got %d", cfg.Auth.Mailbox.BufferSize)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if !cfg.Federation.StrictVersion || cfg.Federation.RequiredVersion != "^3.0.0" {
		t.Fatalf("unexpected federation config %+v", cfg.Federation)
	}
	if cfg.CallbackPath() != "/auth/callback" {
		t.Fatalf("unexpected callback path %q", cfg.CallbackPath())
	}
}

func TestLoadEnvOverridesAndFileIndirection(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secret, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("FEDAUTH_CLIENT_ID", "app-env")
	t.Setenv("FEDAUTH_CLIENT_SECRET_FILE", secret)
	t.Setenv("FEDAUTH_SCOPES", "openid Mail.Read")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load(writeFile(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Entra.ClientID != "app-env" || cfg.Entra.ClientSecret != "s3cret" {
		t.Fatalf("unexpected env overrides %+v", cfg.Entra)
	}
	if got := cfg.Auth.Login.Scopes; len(got) != 2 || got[1] != "Mail.Read" {
		t.Fatalf("unexpected scopes %v", got)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("expected redis db 3, got %d", cfg.Redis.DB)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("FEDAUTH_STATE_TTL", "soon")
	if _, err := Load(writeFile(t, sample)); err == nil || !strings.Contains(err.Error(), "FEDAUTH_STATE_TTL") {
		t.Fatalf("expected state ttl error, got %v", err)
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	_, err := Load(writeFile(t, "log:\n  format: xml\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"client_id", "tenant_id", "redirect_uri", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "auth: [")); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadMetricsGraphAndRemotes(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	body := sample + `
graph:
  base_url: https://graph.example
remotes:
  orders_roles: [Orders.Read]
`
	cfg, err := Load(writeFile(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Metrics.OTel.Enabled() || cfg.Metrics.OTel.ServiceName != "fedauth" || cfg.Metrics.OTel.Interval != 15*time.Second {
		t.Fatalf("unexpected otel config %+v", cfg.Metrics.OTel)
	}
	if cfg.Graph.BaseURL != "https://graph.example" || len(cfg.Graph.Scopes) != 1 || cfg.Graph.Scopes[0] != "User.Read" {
		t.Fatalf("unexpected graph config %+v", cfg.Graph)
	}
	if got := cfg.Remotes.OrdersRoles; len(got) != 1 || got[0] != "Orders.Read" {
		t.Fatalf("unexpected orders roles %v", got)
	}
}

func TestLoadRejectsRelativeOTelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "/otlp")
	if _, err := Load(writeFile(t, sample)); err == nil || !strings.Contains(err.Error(), "metrics.otel.endpoint") {
		t.Fatalf("expected otel endpoint error, got %v", err)
	}
	if cfg := Default(); cfg.Metrics.OTel.Enabled() {
		t.Fatal("otel export must be off by default")
	}
}
