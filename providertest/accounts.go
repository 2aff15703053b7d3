package providertest

import fedAuth "github.com/MrEthical07/fedAuth"

// Account builds an account in tenant "tenant-1" whose ID-token claims carry
// roles.
func Account(homeID, username, name string, roles ...string) fedAuth.Account {
	claims := map[string]any{
		"preferred_username": username,
		"tid":                "tenant-1",
	}
	if name != "" {
		claims["name"] = name
	}
	if roles != nil {
		list := make([]any, 0, len(roles))
		for _, r := range roles {
			list = append(list, r)
		}
		claims["roles"] = list
	}
	return fedAuth.Account{
		HomeAccountID:  homeID,
		LocalAccountID: homeID,
		Environment:    "login.microsoftonline.com",
		TenantID:       "tenant-1",
		Username:       username,
		Name:           name,
		IDTokenClaims:  claims,
	}
}
