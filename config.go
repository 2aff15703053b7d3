package fedAuth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config defines the facade's tunables. A Config is copied into the Facade at
// Build time; later changes to the caller's value have no effect.
type Config struct {
	Login   LoginConfig   `yaml:"login"`
	Mailbox MailboxConfig `yaml:"mailbox"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig holds the request parameters the facade passes to the provider
// for interactive login and logout.
type LoginConfig struct {
	Scopes                []string `yaml:"scopes"`
	PostLogoutRedirectURI string   `yaml:"post_logout_redirect_uri"`
	Prompt                string   `yaml:"prompt"`
}

/*
====================================
MAILBOX CONFIG
====================================
*/

// MailboxConfig sizes the channels feeding the session loop.
type MailboxConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters and the token latency histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultLoginScopes are the OpenID Connect scopes requested on login plus
// the Graph profile scope.
var DefaultLoginScopes = []string{"openid", "profile", "email", "User.Read"}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Login: LoginConfig{
			Scopes:                append([]string(nil), DefaultLoginScopes...),
			PostLogoutRedirectURI: "/",
		},
		Mailbox: MailboxConfig{
			BufferSize: 16,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Login.Scopes = append([]string(nil), cfg.Login.Scopes...)
	return out
}

// Validate reports the first invalid setting, wrapped in [ErrInvalidConfig].
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if len(c.Login.Scopes) == 0 {
		return fmt.Errorf("%w: login scopes must not be empty", ErrInvalidConfig)
	}
	for _, scope := range c.Login.Scopes {
		if strings.TrimSpace(scope) == "" || strings.ContainsAny(scope, " \t\n") {
			return fmt.Errorf("%w: invalid login scope %q", ErrInvalidConfig, scope)
		}
	}
	if c.Login.PostLogoutRedirectURI != "" {
		if _, err := url.Parse(c.Login.PostLogoutRedirectURI); err != nil {
			return fmt.Errorf("%w: post logout redirect uri: %v", ErrInvalidConfig, err)
		}
	}
	switch c.Login.Prompt {
	case "", "login", "none", "consent", "select_account", "create":
	default:
		return fmt.Errorf("%w: unsupported prompt %q", ErrInvalidConfig, c.Login.Prompt)
	}
	if c.Mailbox.BufferSize <= 0 {
		return fmt.Errorf("%w: mailbox buffer size must be > 0", ErrInvalidConfig)
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: audit buffer size must be > 0 when audit is enabled", ErrInvalidConfig)
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.Join(ErrInvalidConfig, errors.New("latency histograms require metrics to be enabled"))
	}
	return nil
}
