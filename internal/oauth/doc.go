// Package oauth brokers OAuth 1.0a and OAuth 2.0 authorization on behalf of
// gadgets and signs the requests the proxy sends for them.
//
// # Flow
//
// A gadget asks the proxy to fetch a protected resource. RequestSigner looks
// for a granted token under CacheKey(owner, app, service):
//
//  1. Found: the token is applied to the outbound request (Authorization
//     header, query or form body depending on the service declaration).
//  2. Missing: the protocol's FlowController starts authorization. OAuth1
//     fetches a request token; OAuth2 mints a random state. The pending
//     token is cached under that value and an AuthorizationResponse with
//     the provider approval URL goes back to the gadget.
//  3. The provider redirects the popup to the container callback.
//     CallbackHandler looks up the pending token, exchanges the verifier or
//     code, and caches the access token under CacheKey.
//
// # Components
//
//   - TokenCache: process-wide pending/granted token store, created once
//   - SignatureEngine: HMAC-SHA1 signing per RFC 5849
//   - ExchangeClient: provider calls, built on golang.org/x/oauth2 for OAuth2
//   - OAuth1Flow, OAuth2Flow: the per-protocol state machines
//   - RequestSigner: picks a flow and signs proxied requests
//   - CallbackHandler: the provider redirect target
//   - Manager: wires the above together
//
// # Errors
//
// Every step returns a typed error: ConfigurationError, TokenExchangeError,
// InvalidStateError or NetworkError. Provider response bodies never appear
// in error messages. Token values are never logged.
//
// # Limitations
//
// The cache is in memory and last-write-wins; tokens do not survive a
// restart and concurrent grants for the same triple overwrite each other.
package oauth
