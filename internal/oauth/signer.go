package oauth

import (
	"context"
	"net/http"
)

// SignResult reports what RequestSigner.Sign did with an outbound request.
type SignResult struct {
	Signed           bool
	Protocol         ProtocolType
	Service          string // Service the token was bound to
	ApprovalRequired bool
	Authorization    *AuthorizationResponse
}

// RequestSigner attaches cached credentials to proxied requests, or starts
// authorization when the user has not yet granted access.
type RequestSigner struct {
	cache *TokenCache
	flows []FlowController
}

// NewRequestSigner creates a signer. Flows are consulted in order.
func NewRequestSigner(cache *TokenCache, flows ...FlowController) *RequestSigner {
	return &RequestSigner{cache: cache, flows: flows}
}

// Select returns the first flow that can handle the token or request.
func (s *RequestSigner) Select(r *http.Request, token *SecurityToken) FlowController {
	for _, f := range s.flows {
		if f.CanHandle(r, token) {
			return f
		}
	}
	return nil
}

// Sign applies credentials for token to out. in is the inbound gadget
// request. When no flow applies, out is left unsigned.
func (s *RequestSigner) Sign(ctx context.Context, out, in *http.Request, token *SecurityToken) (SignResult, error) {
	flow := s.Select(in, token)
	if flow == nil {
		return SignResult{}, nil
	}
	if token == nil {
		return SignResult{}, &InvalidStateError{Reason: "no security token"}
	}

	t := token.Clone()
	if err := flow.BindService(ctx, t); err != nil {
		return SignResult{}, err
	}

	if cached := s.cache.Get(t.CacheKey()); cached != nil && cached.IsAccessToken {
		if err := flow.ApplyCredentials(ctx, out, cached); err != nil {
			return SignResult{}, err
		}
		return SignResult{Signed: true, Protocol: flow.Protocol(), Service: t.ServiceName}, nil
	}

	auth, err := flow.ProcessRequestToken(ctx, in, t)
	if err != nil {
		return SignResult{}, err
	}
	return SignResult{Protocol: flow.Protocol(), Service: t.ServiceName, ApprovalRequired: true, Authorization: auth}, nil
}
