// Package fedAuth provides a reactive authentication-session facade over a
// shared identity provider.
//
// Every component of a process (a host application and the remote modules it
// loads) shares one [IdentityProvider] instance. The [Facade] observes that
// provider's interaction-status and event streams and keeps one session
// snapshot: whether a user is authenticated, their [UserProfile], and whether
// the provider is still settling after startup.
//
// # Architecture boundaries
//
// fedAuth is the public surface. It exposes [Facade], [Builder], [Config] and
// value types (Session, UserProfile, Account, MetricsSnapshot). The OAuth and
// OIDC protocol lives behind the provider; see package entra for an
// implementation and package providertest for a scriptable fake. Audit
// dispatch and event fan-out live under internal/.
//
// # Concurrency model
//
// A single goroutine owns the session. The provider streams are pumped into
// one mailbox per category (redirect result, settle, login, logout, token,
// login failure) and applied in arrival order. Readers take copies under a
// read lock; [Facade.Watch] delivers the latest snapshot on change.
//
// Loading starts true and becomes false only after the provider first
// reports that no interaction is in progress. There is no timeout: a provider
// that never settles keeps the facade loading.
package fedAuth
