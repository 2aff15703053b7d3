// Package entra implements fedAuth.IdentityProvider against Microsoft Entra ID
// or any OpenID Connect issuer.
//
// The provider runs the authorization-code flow with PKCE and a nonce,
// completes it in [Provider.CallbackHandler], and keeps accounts and access
// tokens in an accountcache.Cache so that several processes can share one
// sign-in. Interaction status and events are fanned out through
// internal/broadcast; the status stream replays its latest value to new
// subscribers.
//
// Navigation is abstracted behind [Navigator]: [HTTPNavigator] answers the
// in-flight HTTP request with a redirect, [FuncNavigator] hands the URL to a
// function (for example one that opens a browser from a CLI).
package entra
