// Package middleware adapts the fedAuth session facade to net/http.
//
// # Guards
//
//   - [RequireSession]: lets authenticated requests through, holds requests
//     while the facade is still loading and starts a login otherwise.
//   - [RequireRoles]: rejects sessions that carry none of the given roles.
//
// # Outbound
//
// [Transport] attaches a silently acquired bearer token to requests bound for
// a protected resource.
//
// # What this package must NOT do
//
//   - Talk to an identity provider directly (the facade owns that).
//   - Cache tokens (the provider's account cache does).
//   - Make authorization decisions beyond role membership.
package middleware
