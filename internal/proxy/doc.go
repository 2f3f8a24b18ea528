// Package proxy relays gadget requests to third-party servers.
//
// MakeRequestHandler serves gadgets.io.makeRequest. Its response is a JSON
// object keyed by the requested URL, prefixed with UnparseableCruft:
//
//	throw 1; < don't be evil' >{"http://api.test/r":{"rc":200,"st":"...","body":"..."}}
//
// When the user has not yet approved access the entry carries
// oauthApprovalUrl and oauthState instead of a body.
//
// ConcatHandler joins several scripts into one response, all or nothing.
// AuthorizeHandler starts an OAuth flow without a proxied request.
package proxy
