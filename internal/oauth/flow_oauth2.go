package oauth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"gadgethost/pkg/logging"
)

// tokenExpiryMargin accounts for clock skew between us and the provider.
const tokenExpiryMargin = 30 * time.Second

// OAuth2Flow implements the OAuth 2.0 authorization-code grant. Pending
// tokens are cached under a random state value that the provider echoes.
type OAuth2Flow struct {
	deps FlowDeps
	now  func() time.Time
}

// NewOAuth2Flow creates the OAuth2 flow controller.
func NewOAuth2Flow(deps FlowDeps) *OAuth2Flow {
	return &OAuth2Flow{deps: deps, now: time.Now}
}

func (f *OAuth2Flow) Protocol() ProtocolType { return ProtocolOAuth2 }

func (f *OAuth2Flow) CanHandle(r *http.Request, token *SecurityToken) bool {
	if token != nil {
		return token.Protocol == ProtocolOAuth2
	}
	return r != nil && r.URL.Query().Get("code") != ""
}

func (f *OAuth2Flow) BindService(ctx context.Context, token *SecurityToken) error {
	svc, err := f.deps.Services.ResolveService2(ctx, token.AppURL, token.ServiceName)
	if err != nil {
		return configError(token, token.ServiceName, err)
	}
	token.ServiceName = svc.Name
	token.Protocol = ProtocolOAuth2
	return nil
}

func (f *OAuth2Flow) lookup(ctx context.Context, token *SecurityToken) (Service2Definition, Consumer2Credential, string, error) {
	svc, err := f.deps.Services.ResolveService2(ctx, token.AppURL, token.ServiceName)
	if err != nil {
		return Service2Definition{}, Consumer2Credential{}, "", configError(token, token.ServiceName, err)
	}
	consumer, err := f.deps.Consumers.Consumer2(ctx, token.AppURL, svc.Name)
	if err != nil {
		return Service2Definition{}, Consumer2Credential{}, "", configError(token, svc.Name, err)
	}
	redirect := consumer.RedirectURI
	if redirect == "" {
		redirect = f.deps.CallbackURL
	}
	return svc, consumer, redirect, nil
}

// ProcessRequestToken builds the provider authorization URL. No network
// call is made; the pending token is cached under the new state value.
func (f *OAuth2Flow) ProcessRequestToken(ctx context.Context, r *http.Request, token *SecurityToken) (*AuthorizationResponse, error) {
	svc, consumer, redirect, err := f.lookup(ctx, token)
	if err != nil {
		logging.Error("OAuth", err, "OAuth2 authorization lookup failed for app=%s", token.AppURL)
		return nil, err
	}

	state := uuid.NewString()
	token.Protocol = ProtocolOAuth2
	token.ServiceName = svc.Name
	token.Token = ""
	token.TokenSecret = ""
	token.markPending()
	f.deps.bind(token)
	f.deps.Cache.Add(state, token)

	logging.Debug("OAuth", "OAuth2 authorization started for owner=%s app=%s service=%s",
		logging.TruncateID(token.OwnerID), token.AppURL, svc.Name)

	return &AuthorizationResponse{
		Version:    authorizationResponseVersion,
		Protocol:   ProtocolOAuth2.String(),
		Service:    svc.Name,
		AuthURL:    f.deps.Exchange.AuthCodeURL(svc, consumer, redirect, state),
		OAuthState: state,
		Binding:    token.Binding,
	}, nil
}

// ProcessAccessToken exchanges code for an access token and caches it under
// token.CacheKey().
func (f *OAuth2Flow) ProcessAccessToken(ctx context.Context, token *SecurityToken, code string) (*SecurityToken, error) {
	if err := requirePending(token); err != nil {
		return nil, err
	}
	svc, consumer, redirect, err := f.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	params, err := f.deps.Exchange.AcquireAuthorizationCodeToken(ctx, svc, consumer, redirect, code)
	if err != nil {
		logging.Error("OAuth", err, "OAuth2 code exchange failed for app=%s service=%s category=%s",
			token.AppURL, svc.Name, ErrorCategory(err))
		return nil, err
	}

	f.applyGrant(token, params)
	f.deps.Cache.Add(token.CacheKey(), token)

	logging.Audit(logging.AuditEvent{
		Action:   "access_token_granted",
		Outcome:  "success",
		OwnerID:  token.OwnerID,
		AppURL:   token.AppURL,
		Service:  token.ServiceName,
		Protocol: ProtocolOAuth2.String(),
	})
	return token, nil
}

// ProcessCallback reads state and code from r. A provider error parameter
// fails the flow and discards the pending token.
func (f *OAuth2Flow) ProcessCallback(ctx context.Context, r *http.Request) (*SecurityToken, error) {
	state := r.FormValue("state")
	if state == "" {
		return nil, &InvalidStateError{Reason: "callback missing state"}
	}

	if err := f.deps.verifyBinding(r, state); err != nil {
		return nil, err
	}
	pending := f.deps.Cache.Take(state)
	if pending == nil {
		return nil, &InvalidStateError{Reason: "unknown or expired state"}
	}

	if providerErr := r.FormValue("error"); providerErr != "" {
		logging.Audit(logging.AuditEvent{
			Action:   "authorization_denied",
			Outcome:  "failure",
			OwnerID:  pending.OwnerID,
			AppURL:   pending.AppURL,
			Service:  pending.ServiceName,
			Protocol: ProtocolOAuth2.String(),
			Details:  providerErr,
		})
		return nil, &TokenExchangeError{OAuthError: providerErr}
	}

	code := r.FormValue("code")
	if code == "" {
		return nil, &InvalidStateError{Reason: "callback missing code"}
	}
	return f.ProcessAccessToken(ctx, pending, code)
}

// GetAuthQueryString returns the access_token query fragment. It fails with
// an InvalidStateError unless token is an access token.
func (f *OAuth2Flow) GetAuthQueryString(token *SecurityToken) (string, error) {
	if err := requireAccess(token); err != nil {
		return "", err
	}
	return BearerQuery(token.Token), nil
}

// GetAuthHeaders returns the bearer Authorization header.
func (f *OAuth2Flow) GetAuthHeaders(token *SecurityToken) (http.Header, error) {
	if err := requireAccess(token); err != nil {
		return nil, err
	}
	return http.Header{"Authorization": {BearerHeader(token.Token)}}, nil
}

// Refresh renews an expired access token and re-caches it.
func (f *OAuth2Flow) Refresh(ctx context.Context, token *SecurityToken) (*SecurityToken, error) {
	if err := requireAccess(token); err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		return nil, &InvalidStateError{Reason: "token has no refresh token"}
	}
	svc, consumer, _, err := f.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	params, err := f.deps.Exchange.RefreshAccessToken(ctx, svc, consumer, token.RefreshToken)
	if err != nil {
		logging.Error("OAuth", err, "OAuth2 refresh failed for app=%s service=%s", token.AppURL, svc.Name)
		return nil, err
	}

	f.applyGrant(token, params)
	f.deps.Cache.Add(token.CacheKey(), token)
	logging.Debug("OAuth", "Refreshed OAuth2 token for owner=%s service=%s", logging.TruncateID(token.OwnerID), svc.Name)
	return token, nil
}

// ApplyCredentials places the bearer token on out, refreshing it first when
// it has expired and a refresh token is available. An expired token that
// cannot be refreshed is removed from the cache.
func (f *OAuth2Flow) ApplyCredentials(ctx context.Context, out *http.Request, token *SecurityToken) error {
	if err := requireAccess(token); err != nil {
		return err
	}
	if token.IsExpired(tokenExpiryMargin) {
		if token.RefreshToken == "" {
			f.deps.Cache.Remove(token.CacheKey())
			return &InvalidStateError{Reason: "access token expired"}
		}
		if _, err := f.Refresh(ctx, token); err != nil {
			// A grant the provider refuses to refresh is dead; dropping it lets
			// the next request start a new approval.
			var exchErr *TokenExchangeError
			if errors.As(err, &exchErr) {
				f.deps.Cache.Remove(token.CacheKey())
			}
			return err
		}
	}

	svc, err := f.deps.Services.ResolveService2(ctx, token.AppURL, token.ServiceName)
	if err != nil {
		return configError(token, token.ServiceName, err)
	}

	if svc.TokenLocation == TokenLocationQuery {
		qs, err := f.GetAuthQueryString(token)
		if err != nil {
			return err
		}
		if out.URL.RawQuery == "" {
			out.URL.RawQuery = qs
		} else {
			out.URL.RawQuery += "&" + qs
		}
		return nil
	}

	h, err := f.GetAuthHeaders(token)
	if err != nil {
		return err
	}
	out.Header.Set("Authorization", h.Get("Authorization"))
	return nil
}

func (f *OAuth2Flow) applyGrant(token *SecurityToken, params ParamMap) {
	token.Token = params.Get("access_token")
	token.TokenSecret = ""
	if rt := params.Get("refresh_token"); rt != "" {
		token.RefreshToken = rt
	}
	token.ExpiresAt = time.Time{}
	if at, err := strconv.ParseInt(params.Get("expires_at"), 10, 64); err == nil && at > 0 {
		token.ExpiresAt = time.Unix(at, 0)
	} else {
		token.ExpiresAt = params.ExpiresAt(f.now())
	}
	token.markGranted()
}
