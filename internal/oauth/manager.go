package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gadgethost/pkg/logging"
)

// ManagerConfig holds the collaborators of a Manager. Cache is owned by the
// caller and shared with anything else that needs it.
type ManagerConfig struct {
	Cache       *TokenCache
	Services    ServiceResolver
	Consumers   ConsumerStore
	HTTPClient  *http.Client
	Signature   *SignatureEngine
	CallbackURL string

	// BindBrowser requires each callback to carry the cookie set when its
	// authorization started. StateTTL bounds the cookie lifetime.
	BindBrowser bool
	StateTTL    time.Duration
}

// Manager wires both flow controllers, the request signer and the callback
// handler around one TokenCache.
type Manager struct {
	cache   *TokenCache
	oauth1  *OAuth1Flow
	oauth2  *OAuth2Flow
	signer  *RequestSigner
	handler *CallbackHandler
	binding *BrowserBinding
}

// NewManager creates a Manager. Cache, Services and Consumers are required.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Cache == nil || cfg.Services == nil || cfg.Consumers == nil {
		return nil, fmt.Errorf("oauth manager requires a cache, a service resolver and a consumer store")
	}
	if cfg.Signature == nil {
		cfg.Signature = NewSignatureEngine()
	}

	deps := FlowDeps{
		Cache:       cfg.Cache,
		Services:    cfg.Services,
		Consumers:   cfg.Consumers,
		Exchange:    NewExchangeClient(cfg.HTTPClient, cfg.Signature),
		Signature:   cfg.Signature,
		CallbackURL: cfg.CallbackURL,
	}
	if cfg.BindBrowser {
		ttl := cfg.StateTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		deps.Binding = NewBrowserBinding(cfg.CallbackURL, ttl)
	}

	m := &Manager{
		cache:   cfg.Cache,
		oauth1:  NewOAuth1Flow(deps),
		oauth2:  NewOAuth2Flow(deps),
		binding: deps.Binding,
	}
	// OAuth1 is consulted first.
	m.signer = NewRequestSigner(cfg.Cache, m.oauth1, m.oauth2)
	m.handler = NewCallbackHandler(m)
	m.handler.binding = deps.Binding

	logging.Info("OAuth", "OAuth manager initialized (callback=%s, bindBrowser=%t)", cfg.CallbackURL, cfg.BindBrowser)
	return m, nil
}

// Signer returns the request signer used by the proxy.
func (m *Manager) Signer() *RequestSigner { return m.signer }

// CallbackHandler returns the HTTP handler for the provider callback.
func (m *Manager) CallbackHandler() http.Handler { return m.handler }

// Cache returns the shared token cache.
func (m *Manager) Cache() *TokenCache { return m.cache }

// Flow returns the controller for p, or nil for ProtocolNone.
func (m *Manager) Flow(p ProtocolType) FlowController {
	switch p {
	case ProtocolOAuth1:
		return m.oauth1
	case ProtocolOAuth2:
		return m.oauth2
	default:
		return nil
	}
}

// Sign signs a proxied request for token through the request signer.
func (m *Manager) Sign(ctx context.Context, out, in *http.Request, token *SecurityToken) (SignResult, error) {
	return m.signer.Sign(ctx, out, in, token)
}

// Authorize starts authorization for token explicitly, regardless of any
// cached access token.
func (m *Manager) Authorize(ctx context.Context, r *http.Request, token *SecurityToken) (*AuthorizationResponse, error) {
	if token == nil {
		return nil, &InvalidStateError{Reason: "no security token"}
	}
	flow := m.Flow(token.Protocol)
	if flow == nil {
		return nil, &InvalidStateError{Reason: "token does not name an oauth protocol"}
	}
	t := token.Clone()
	if err := flow.BindService(ctx, t); err != nil {
		return nil, err
	}
	return flow.ProcessRequestToken(ctx, r, t)
}

// BindBrowser sets the binding cookie for an authorization the proxy is
// about to hand to the browser. It does nothing when binding is disabled.
func (m *Manager) BindBrowser(w http.ResponseWriter, resp *AuthorizationResponse) {
	m.binding.Set(w, resp)
}

// HandleCallback routes a provider redirect to the flow that issued it.
// Parameters are read from the query string or a POSTed form body.
func (m *Manager) HandleCallback(ctx context.Context, r *http.Request) (*SecurityToken, error) {
	switch {
	case r.FormValue("oauth_token") != "":
		return m.oauth1.ProcessCallback(ctx, r)
	case r.FormValue("state") != "", r.FormValue("code") != "":
		return m.oauth2.ProcessCallback(ctx, r)
	default:
		return nil, &InvalidStateError{Reason: "callback carries no oauth parameters"}
	}
}

// AccessToken returns the cached access token for the triple, or nil.
func (m *Manager) AccessToken(ownerID, appURL, serviceName string) *SecurityToken {
	t := m.cache.Get(CacheKey(ownerID, appURL, serviceName))
	if t == nil || !t.IsAccessToken {
		return nil
	}
	return t
}

// Revoke forgets the access token for the triple. The provider is not told.
func (m *Manager) Revoke(ownerID, appURL, serviceName string) bool {
	removed := m.cache.Remove(CacheKey(ownerID, appURL, serviceName))
	if removed {
		logging.Audit(logging.AuditEvent{
			Action:  "access_token_revoked",
			Outcome: "success",
			OwnerID: ownerID,
			AppURL:  appURL,
			Service: serviceName,
		})
	}
	return removed
}
