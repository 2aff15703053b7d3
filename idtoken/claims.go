package idtoken

// RolesClaim is the ID-token claim carrying application roles.
const RolesClaim = "roles"

// Roles returns the application roles in claims, in token order. A missing
// claim, or one that is not a list of strings, yields an empty slice.
func Roles(claims map[string]any) []string {
	raw, ok := claims[RolesClaim]
	if !ok {
		return []string{}
	}

	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return []string{}
			}
			out = append(out, s)
		}
		return out
	default:
		return []string{}
	}
}

// StringClaim returns claims[name] when it is a string.
func StringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// Map converts c into the generic claim map carried on accounts.
func (c *Claims) Map() map[string]any {
	if c == nil {
		return nil
	}
	out := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("name", c.Name)
	put("preferred_username", c.PreferredUsername)
	put("email", c.Email)
	put("oid", c.OID)
	put("tid", c.TID)
	put("nonce", c.Nonce)
	put("iss", c.Issuer)
	put("sub", c.Subject)
	if len(c.Roles) > 0 {
		roles := make([]any, 0, len(c.Roles))
		for _, r := range c.Roles {
			roles = append(roles, r)
		}
		out[RolesClaim] = roles
	}
	if len(c.Audience) > 0 {
		out["aud"] = []any{c.Audience[0]}
	}
	if c.ExpiresAt != nil {
		out["exp"] = float64(c.ExpiresAt.Unix())
	}
	if c.IssuedAt != nil {
		out["iat"] = float64(c.IssuedAt.Unix())
	}
	return out
}
