package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"gadgethost/pkg/logging"
)

// OAuth1Flow implements three-legged OAuth 1.0a. Pending tokens are cached
// under the request token value; granted tokens under SecurityToken.CacheKey.
type OAuth1Flow struct {
	deps FlowDeps
}

// NewOAuth1Flow creates the OAuth1 flow controller.
func NewOAuth1Flow(deps FlowDeps) *OAuth1Flow {
	if deps.Signature == nil {
		deps.Signature = NewSignatureEngine()
	}
	return &OAuth1Flow{deps: deps}
}

func (f *OAuth1Flow) Protocol() ProtocolType { return ProtocolOAuth1 }

func (f *OAuth1Flow) CanHandle(r *http.Request, token *SecurityToken) bool {
	if token != nil {
		return token.Protocol == ProtocolOAuth1
	}
	return r != nil && r.URL.Query().Get("oauth_token") != ""
}

func (f *OAuth1Flow) BindService(ctx context.Context, token *SecurityToken) error {
	svc, err := f.deps.Services.ResolveService(ctx, token.AppURL, token.ServiceName)
	if err != nil {
		return configError(token, token.ServiceName, err)
	}
	token.ServiceName = svc.Name
	token.Protocol = ProtocolOAuth1
	return nil
}

func (f *OAuth1Flow) lookup(ctx context.Context, token *SecurityToken) (ServiceDefinition, ConsumerCredential, error) {
	svc, err := f.deps.Services.ResolveService(ctx, token.AppURL, token.ServiceName)
	if err != nil {
		return ServiceDefinition{}, ConsumerCredential{}, configError(token, token.ServiceName, err)
	}
	consumer, err := f.deps.Consumers.Consumer(ctx, token.AppURL, svc.Name)
	if err != nil {
		return ServiceDefinition{}, ConsumerCredential{}, configError(token, svc.Name, err)
	}
	if consumer.SignatureMethod != "" && consumer.SignatureMethod != signatureMethodHMACSHA1 {
		return ServiceDefinition{}, ConsumerCredential{}, configError(token, svc.Name,
			fmt.Errorf("unsupported signature method %q", consumer.SignatureMethod))
	}
	return svc, consumer, nil
}

// ProcessRequestToken fetches a request token and returns the provider URL
// the user must visit. OAuthState in the response is the request token.
func (f *OAuth1Flow) ProcessRequestToken(ctx context.Context, r *http.Request, token *SecurityToken) (*AuthorizationResponse, error) {
	svc, consumer, err := f.lookup(ctx, token)
	if err != nil {
		logging.Error("OAuth", err, "OAuth1 request token lookup failed for app=%s", token.AppURL)
		return nil, err
	}

	authURL, err := url.Parse(svc.Authorization.URL)
	if err != nil || authURL.Scheme == "" || authURL.Host == "" {
		err = configError(token, svc.Name, fmt.Errorf("invalid authorization url %q", svc.Authorization.URL))
		logging.Error("OAuth", err, "OAuth1 service misconfigured for app=%s", token.AppURL)
		return nil, err
	}

	callback := consumer.CallbackURL
	if callback == "" {
		callback = f.deps.CallbackURL
	}

	params, err := f.deps.Exchange.AcquireRequestToken(ctx, svc, consumer, callback)
	if err != nil {
		logging.Error("OAuth", err, "OAuth1 request token failed for app=%s service=%s category=%s",
			token.AppURL, svc.Name, ErrorCategory(err))
		return nil, err
	}

	token.Protocol = ProtocolOAuth1
	token.ServiceName = svc.Name
	token.Token = params.Get("oauth_token")
	token.TokenSecret = params.Get("oauth_token_secret")
	token.markPending()
	f.deps.bind(token)
	f.deps.Cache.Add(token.Token, token)

	q := authURL.Query()
	q.Set("oauth_token", token.Token)
	q.Set("oauth_callback", callback)
	authURL.RawQuery = q.Encode()

	logging.Debug("OAuth", "OAuth1 request token issued for owner=%s app=%s service=%s",
		logging.TruncateID(token.OwnerID), token.AppURL, svc.Name)

	return &AuthorizationResponse{
		Version:    authorizationResponseVersion,
		Protocol:   ProtocolOAuth1.String(),
		Service:    svc.Name,
		AuthURL:    authURL.String(),
		OAuthState: token.Token,
		Binding:    token.Binding,
	}, nil
}

// ProcessAccessToken upgrades a pending request token. The pending cache
// entry is dropped and the access token is cached under token.CacheKey().
func (f *OAuth1Flow) ProcessAccessToken(ctx context.Context, token *SecurityToken, verifier string) (*SecurityToken, error) {
	if err := requirePending(token); err != nil {
		return nil, err
	}
	svc, consumer, err := f.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	params, err := f.deps.Exchange.AcquireAccessToken(ctx, svc, consumer, token.Token, token.TokenSecret, verifier)
	if err != nil {
		logging.Error("OAuth", err, "OAuth1 access token failed for app=%s service=%s category=%s",
			token.AppURL, svc.Name, ErrorCategory(err))
		return nil, err
	}

	pendingKey := token.Token
	token.Token = params.Get("oauth_token")
	token.TokenSecret = params.Get("oauth_token_secret")
	token.markGranted()

	f.deps.Cache.Remove(pendingKey)
	f.deps.Cache.Add(token.CacheKey(), token)

	logging.Audit(logging.AuditEvent{
		Action:   "access_token_granted",
		Outcome:  "success",
		OwnerID:  token.OwnerID,
		AppURL:   token.AppURL,
		Service:  token.ServiceName,
		Protocol: ProtocolOAuth1.String(),
	})
	return token, nil
}

// ProcessCallback reads oauth_token and oauth_verifier from r.
func (f *OAuth1Flow) ProcessCallback(ctx context.Context, r *http.Request) (*SecurityToken, error) {
	requestToken := r.FormValue("oauth_token")
	if requestToken == "" {
		return nil, &InvalidStateError{Reason: "callback missing oauth_token"}
	}

	if err := f.deps.verifyBinding(r, requestToken); err != nil {
		return nil, err
	}
	pending := f.deps.Cache.Take(requestToken)
	if pending == nil {
		return nil, &InvalidStateError{Reason: "unknown or expired request token"}
	}
	return f.ProcessAccessToken(ctx, pending, r.FormValue("oauth_verifier"))
}

// GetAuthHeaders returns the Authorization header for req. Form encoded
// bodies take part in the signature.
func (f *OAuth1Flow) GetAuthHeaders(req *http.Request, token *SecurityToken) (http.Header, error) {
	if err := requireAccess(token); err != nil {
		return nil, err
	}
	_, consumer, err := f.lookup(req.Context(), token)
	if err != nil {
		return nil, err
	}
	form, err := readFormBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	header, err := f.deps.Signature.Sign(req.Method, signingURL(req), f.signParams(consumer, token, form))
	if err != nil {
		return nil, err
	}
	return http.Header{"Authorization": {header}}, nil
}

// ApplyCredentials signs out according to the service's param location.
func (f *OAuth1Flow) ApplyCredentials(ctx context.Context, out *http.Request, token *SecurityToken) error {
	if err := requireAccess(token); err != nil {
		return err
	}
	svc, consumer, err := f.lookup(ctx, token)
	if err != nil {
		return err
	}

	switch svc.ParamLocation {
	case ParamLocationQuery:
		v, err := f.deps.Signature.SignQuery(out.Method, signingURL(out), f.signParams(consumer, token, nil))
		if err != nil {
			return err
		}
		q := out.URL.Query()
		for k, vs := range v {
			q[k] = vs
		}
		out.URL.RawQuery = q.Encode()
	case ParamLocationPostBody:
		if out.Method != http.MethodPost {
			return configError(token, svc.Name, fmt.Errorf("param location %s requires POST", svc.ParamLocation))
		}
		form, err := readFormBody(out)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		v, err := f.deps.Signature.SignQuery(out.Method, signingURL(out), f.signParams(consumer, token, form))
		if err != nil {
			return err
		}
		if form == nil {
			form = url.Values{}
		}
		for k, vs := range v {
			form[k] = vs
		}
		setFormBody(out, form)
	default:
		h, err := f.GetAuthHeaders(out, token)
		if err != nil {
			return err
		}
		out.Header.Set("Authorization", h.Get("Authorization"))
	}
	return nil
}

func (f *OAuth1Flow) signParams(c ConsumerCredential, token *SecurityToken, form url.Values) SignParams {
	return SignParams{
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
		Token:          token.Token,
		TokenSecret:    token.TokenSecret,
		Extra:          form,
	}
}
