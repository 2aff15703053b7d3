package entra

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/fedAuth/accountcache"
)

// DefaultAuthorityHost is the Entra ID public cloud login host.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// Config configures a [Provider].
type Config struct {
	// TenantID selects the directory; "common" and "organizations" are accepted.
	TenantID string
	ClientID string
	// ClientSecret is empty for public clients.
	ClientSecret string
	// Authority overrides the issuer URL. When empty it is
	// DefaultAuthorityHost/{TenantID}/v2.0.
	Authority   string
	RedirectURI string
	// PostLoginRedirectURI is where the callback sends the browser after a
	// redirect login completes.
	PostLoginRedirectURI string
	// DefaultScopes are requested when a login request names none.
	DefaultScopes []string

	Cache      accountcache.Cache
	Navigator  Navigator
	HTTPClient *http.Client
	Logger     *slog.Logger

	// StateTTL bounds how long a started login may wait for its callback.
	StateTTL time.Duration
	// TokenSkew treats cached tokens this close to expiry as expired.
	TokenSkew time.Duration
}

func (c *Config) issuer() string {
	if c.Authority != "" {
		return strings.TrimRight(c.Authority, "/")
	}
	return DefaultAuthorityHost + "/" + c.TenantID + "/v2.0"
}

func (c *Config) applyDefaults() {
	if len(c.DefaultScopes) == 0 {
		c.DefaultScopes = []string{"openid", "profile", "email", "User.Read"}
	}
	if c.PostLoginRedirectURI == "" {
		c.PostLoginRedirectURI = "/"
	}
	if c.Cache == nil {
		c.Cache = accountcache.NewMemory()
	}
	if c.Navigator == nil {
		c.Navigator = HTTPNavigator{}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 10 * time.Minute
	}
	if c.TokenSkew <= 0 {
		c.TokenSkew = 5 * time.Minute
	}
}

// Validate reports missing or malformed settings.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("entra: client id is required")
	}
	if c.TenantID == "" && c.Authority == "" {
		return errors.New("entra: tenant id or authority is required")
	}
	if c.RedirectURI == "" {
		return errors.New("entra: redirect uri is required")
	}
	if u, err := url.Parse(c.RedirectURI); err != nil || !u.IsAbs() {
		return fmt.Errorf("entra: redirect uri must be absolute: %q", c.RedirectURI)
	}
	if c.Authority != "" {
		if u, err := url.Parse(c.Authority); err != nil || !u.IsAbs() {
			return fmt.Errorf("entra: authority must be absolute: %q", c.Authority)
		}
	}
	return nil
}
