package entra

import (
	"net/url"
	"strings"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/accountcache"
	"github.com/MrEthical07/fedAuth/idtoken"
)

// recordFromClaims builds the cache record for a verified ID token.
func recordFromClaims(issuer, rawIDToken, subject string, claims map[string]any) *accountcache.Record {
	oid := idtoken.StringClaim(claims, "oid")
	if oid == "" {
		oid = subject
	}
	tid := idtoken.StringClaim(claims, "tid")

	home := oid
	if tid != "" {
		home = oid + "." + tid
	}

	username := idtoken.StringClaim(claims, "preferred_username")
	if username == "" {
		username = idtoken.StringClaim(claims, "email")
	}

	return &accountcache.Record{
		HomeAccountID:  home,
		LocalAccountID: oid,
		Environment:    environmentOf(issuer),
		TenantID:       tid,
		Username:       username,
		Name:           idtoken.StringClaim(claims, "name"),
		IDToken:        rawIDToken,
	}
}

// accountFromRecord converts a cache record to the provider-neutral account.
// Claims are decoded from the stored ID token, which was verified when it was
// cached.
func accountFromRecord(rec *accountcache.Record) *fedAuth.Account {
	if rec == nil {
		return nil
	}
	account := &fedAuth.Account{
		HomeAccountID:  rec.HomeAccountID,
		LocalAccountID: rec.LocalAccountID,
		Environment:    rec.Environment,
		TenantID:       rec.TenantID,
		Username:       rec.Username,
		Name:           rec.Name,
		IDToken:        rec.IDToken,
	}
	if rec.IDToken != "" {
		if claims, err := idtoken.ParseUnverified(rec.IDToken); err == nil {
			account.IDTokenClaims = claims
		}
	}
	return account
}

func environmentOf(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return issuer
	}
	return u.Host
}

// requestScopes merges the OIDC scopes every login needs with the requested
// ones, preserving order and dropping duplicates.
func requestScopes(requested, defaults []string) []string {
	if len(requested) == 0 {
		requested = defaults
	}
	out := []string{"openid", "profile", "offline_access"}
	seen := map[string]struct{}{"openid": {}, "profile": {}, "offline_access": {}}
	for _, s := range requested {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// grantedScopes reads the space-separated scope list a token endpoint
// returned, falling back to what was requested.
func grantedScopes(extra any, requested []string) []string {
	raw, _ := extra.(string)
	if fields := strings.Fields(raw); len(fields) > 0 {
		return fields
	}
	return append([]string(nil), requested...)
}
