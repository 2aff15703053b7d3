// Package idtoken issues and verifies OpenID Connect ID tokens and extracts
// the claims the session facade relies on, most notably application roles.
package idtoken
