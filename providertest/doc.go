// Package providertest provides a scriptable in-memory fedAuth.IdentityProvider
// for tests. Every response can be set or failed per method, streams are driven
// explicitly, and each call is counted.
package providertest
