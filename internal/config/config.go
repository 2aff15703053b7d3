package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fedAuth "github.com/MrEthical07/fedAuth"
)

// FileConfig is the complete configuration of the fedauth command.
type FileConfig struct {
	Auth       fedAuth.Config   `yaml:"auth"`
	Entra      EntraConfig      `yaml:"entra"`
	Redis      RedisConfig      `yaml:"redis"`
	Server     ServerConfig     `yaml:"server"`
	Federation FederationConfig `yaml:"federation"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Graph      GraphConfig      `yaml:"graph"`
	Remotes    RemotesConfig    `yaml:"remotes"`
}

// EntraConfig describes the app registration.
type EntraConfig struct {
	TenantID             string        `yaml:"tenant_id"`
	ClientID             string        `yaml:"client_id"`
	ClientSecret         string        `yaml:"client_secret"`
	Authority            string        `yaml:"authority"`
	RedirectURI          string        `yaml:"redirect_uri"`
	PostLoginRedirectURI string        `yaml:"post_login_redirect_uri"`
	StateTTL             time.Duration `yaml:"state_ttl"`
}

// RedisConfig selects the shared account cache. An empty Addr keeps the cache
// in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// FederationConfig controls how remotes resolve the shared provider.
type FederationConfig struct {
	ProviderName    string `yaml:"provider_name"`
	ProviderVersion string `yaml:"provider_version"`
	RequiredVersion string `yaml:"required_version"`
	StrictVersion   bool   `yaml:"strict_version"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

// OTelConfig enables OTLP metric export when Endpoint is set.
type OTelConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	ServiceName string        `yaml:"service_name"`
	Interval    time.Duration `yaml:"interval"`
}

func (c OTelConfig) Enabled() bool { return c.Endpoint != "" }

// GraphConfig points the profile page at Microsoft Graph.
type GraphConfig struct {
	BaseURL string   `yaml:"base_url"`
	Scopes  []string `yaml:"scopes"`
}

// RemotesConfig holds the app roles each remote requires.
type RemotesConfig struct {
	OrdersRoles []string `yaml:"orders_roles"`
}

// Default returns the configuration used when no file is given.
func Default() FileConfig {
	return FileConfig{
		Auth: fedAuth.DefaultConfig(),
		Entra: EntraConfig{
			PostLoginRedirectURI: "/",
			StateTTL:             10 * time.Minute,
		},
		Redis: RedisConfig{Prefix: "fa"},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Federation: FederationConfig{
			ProviderName:    "msal",
			ProviderVersion: "3.0.0",
			RequiredVersion: "^3.0.0",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{
			OTel: OTelConfig{ServiceName: "fedauth", Interval: 15 * time.Second},
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.microsoft.com",
			Scopes:  []string{"User.Read"},
		},
	}
}

// Load reads path (skipped when empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	cfg.Entra.TenantID = getEnv("FEDAUTH_TENANT_ID", cfg.Entra.TenantID)
	cfg.Entra.ClientID = getEnv("FEDAUTH_CLIENT_ID", cfg.Entra.ClientID)
	cfg.Entra.ClientSecret = getEnv("FEDAUTH_CLIENT_SECRET", cfg.Entra.ClientSecret)
	cfg.Entra.Authority = getEnv("FEDAUTH_AUTHORITY", cfg.Entra.Authority)
	cfg.Entra.RedirectURI = getEnv("FEDAUTH_REDIRECT_URI", cfg.Entra.RedirectURI)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Server.Addr = getEnv("LISTEN_ADDR", cfg.Server.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Metrics.OTel.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Metrics.OTel.Endpoint)
	cfg.Metrics.OTel.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Metrics.OTel.ServiceName)

	if scopes := getEnv("FEDAUTH_SCOPES", ""); scopes != "" {
		cfg.Auth.Login.Scopes = strings.Fields(scopes)
	}
	if db := getEnv("REDIS_DB", ""); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if ttl := getEnv("FEDAUTH_STATE_TTL", ""); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid FEDAUTH_STATE_TTL format: %w", err)
		}
		cfg.Entra.StateTTL = d
	}
	return nil
}

// Validate reports every problem at once.
func (c *FileConfig) Validate() error {
	var errs []error
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Entra.ClientID == "" {
		errs = append(errs, errors.New("entra.client_id cannot be empty"))
	}
	if c.Entra.TenantID == "" && c.Entra.Authority == "" {
		errs = append(errs, errors.New("entra.tenant_id or entra.authority is required"))
	}
	if u, err := url.Parse(c.Entra.RedirectURI); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("entra.redirect_uri must be an absolute URL, got %q", c.Entra.RedirectURI))
	}
	if c.Entra.StateTTL <= 0 {
		errs = append(errs, errors.New("entra.state_ttl must be positive"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr cannot be empty"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, errors.New("redis.db cannot be negative"))
	}
	if c.Federation.ProviderName == "" {
		errs = append(errs, errors.New("federation.provider_name cannot be empty"))
	}
	if c.Metrics.OTel.Enabled() {
		if u, err := url.Parse(c.Metrics.OTel.Endpoint); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("metrics.otel.endpoint must be an absolute URL, got %q", c.Metrics.OTel.Endpoint))
		}
		if c.Metrics.OTel.Interval <= 0 {
			errs = append(errs, errors.New("metrics.otel.interval must be positive"))
		}
	}
	if u, err := url.Parse(c.Graph.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("graph.base_url must be an absolute URL, got %q", c.Graph.BaseURL))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// CallbackPath is the path component of the redirect URI, where the callback
// handler must be mounted.
func (c *FileConfig) CallbackPath() string {
	u, err := url.Parse(c.Entra.RedirectURI)
	if err != nil || u.Path == "" {
		return "/auth/callback"
	}
	return u.Path
}

// getEnv retrieves an environment variable or returns a fallback value.
// KEY_FILE takes precedence and names a file holding the value.
func getEnv(key, fallback string) string {
	if path := os.Getenv(key + "_FILE"); path != "" {
		content, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
