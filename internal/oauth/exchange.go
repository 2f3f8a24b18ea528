package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"gadgethost/pkg/logging"
)

// DefaultExchangeTimeout bounds a single provider round trip.
const DefaultExchangeTimeout = 30 * time.Second

// maxTokenResponseBytes caps how much of a provider response is read.
const maxTokenResponseBytes = 1 << 20

const tracerName = "gadgethost/internal/oauth"

// ExchangeClient performs the outbound calls of both OAuth flows: request
// and access token exchange for OAuth1, code exchange and refresh for OAuth2.
type ExchangeClient struct {
	httpClient *http.Client
	signer     *SignatureEngine
	tracer     trace.Tracer
	now        func() time.Time
}

// NewExchangeClient creates an exchange client. A nil httpClient gets a
// client with DefaultExchangeTimeout; a nil signer gets NewSignatureEngine.
func NewExchangeClient(httpClient *http.Client, signer *SignatureEngine) *ExchangeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultExchangeTimeout}
	}
	if signer == nil {
		signer = NewSignatureEngine()
	}
	return &ExchangeClient{
		httpClient: httpClient,
		signer:     signer,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

// AcquireRequestToken obtains an OAuth1 request token. The response must
// carry oauth_token.
func (x *ExchangeClient) AcquireRequestToken(ctx context.Context, svc ServiceDefinition, c ConsumerCredential, callback string) (params ParamMap, err error) {
	ctx, span := x.startSpan(ctx, "oauth.AcquireRequestToken", svc.Name, svc.RequestToken.URL)
	defer func() { endSpan(span, err) }()

	params, err = x.doOAuth1(ctx, svc.RequestToken, svc.ParamLocation, SignParams{
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
		Callback:       callback,
	})
	if err != nil {
		return nil, err
	}
	if params.Get("oauth_token") == "" {
		return nil, &TokenExchangeError{Endpoint: endpointLabel(svc.RequestToken.URL), Err: errors.New("response missing oauth_token")}
	}
	return params, nil
}

// AcquireAccessToken trades an authorized request token and verifier for an
// OAuth1 access token.
func (x *ExchangeClient) AcquireAccessToken(ctx context.Context, svc ServiceDefinition, c ConsumerCredential, requestToken, requestSecret, verifier string) (params ParamMap, err error) {
	ctx, span := x.startSpan(ctx, "oauth.AcquireAccessToken", svc.Name, svc.AccessToken.URL)
	defer func() { endSpan(span, err) }()

	params, err = x.doOAuth1(ctx, svc.AccessToken, svc.ParamLocation, SignParams{
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
		Token:          requestToken,
		TokenSecret:    requestSecret,
		Verifier:       verifier,
	})
	if err != nil {
		return nil, err
	}
	if params.Get("oauth_token") == "" {
		return nil, &TokenExchangeError{Endpoint: endpointLabel(svc.AccessToken.URL), Err: errors.New("response missing oauth_token")}
	}
	return params, nil
}

func (x *ExchangeClient) doOAuth1(ctx context.Context, ep Endpoint, loc ParamLocation, p SignParams) (ParamMap, error) {
	method := ep.MethodOr(http.MethodPost)
	target := ep.URL

	var body io.Reader
	var authHeader string
	switch loc {
	case ParamLocationQuery:
		v, err := x.signer.SignQuery(method, ep.URL, p)
		if err != nil {
			return nil, err
		}
		target = appendQuery(ep.URL, v)
	case ParamLocationPostBody:
		if method != http.MethodPost {
			return nil, fmt.Errorf("param location %s requires POST, endpoint uses %s", loc, method)
		}
		v, err := x.signer.SignQuery(method, ep.URL, p)
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(v.Encode())
	default:
		h, err := x.signer.Sign(method, ep.URL, p)
		if err != nil {
			return nil, err
		}
		authHeader = h
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return x.do(req, ep.URL)
}

// AuthCodeURL builds the OAuth2 authorization-code URL for state.
func (x *ExchangeClient) AuthCodeURL(svc Service2Definition, c Consumer2Credential, redirectURI, state string) string {
	return oauth2Config(svc, c, redirectURI).AuthCodeURL(state)
}

// AcquireAuthorizationCodeToken exchanges an authorization code. POST
// endpoints go through golang.org/x/oauth2; GET endpoints are called directly.
func (x *ExchangeClient) AcquireAuthorizationCodeToken(ctx context.Context, svc Service2Definition, c Consumer2Credential, redirectURI, code string) (params ParamMap, err error) {
	ctx, span := x.startSpan(ctx, "oauth.AcquireAuthorizationCodeToken", svc.Name, svc.Token.URL)
	defer func() { endSpan(span, err) }()

	if svc.Token.MethodOr(http.MethodPost) == http.MethodGet {
		return x.exchangeWithGet(ctx, svc, c, redirectURI, code)
	}

	rt := x.recordingClient()
	tok, err := oauth2Config(svc, c, redirectURI).Exchange(context.WithValue(ctx, oauth2.HTTPClient, rt.client), code)
	if err != nil {
		return nil, mapOAuth2Error(svc.Token.URL, err, rt)
	}
	return tokenParams(tok, x.now()), nil
}

// RefreshAccessToken renews an OAuth2 access token with a refresh token.
// Providers that do not rotate refresh tokens get the old one back.
func (x *ExchangeClient) RefreshAccessToken(ctx context.Context, svc Service2Definition, c Consumer2Credential, refreshToken string) (params ParamMap, err error) {
	ctx, span := x.startSpan(ctx, "oauth.RefreshAccessToken", svc.Name, svc.Token.URL)
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return nil, &InvalidStateError{Reason: "no refresh token"}
	}

	rt := x.recordingClient()
	src := oauth2Config(svc, c, "").TokenSource(context.WithValue(ctx, oauth2.HTTPClient, rt.client),
		&oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, mapOAuth2Error(svc.Token.URL, err, rt)
	}
	return tokenParams(tok, x.now()), nil
}

func (x *ExchangeClient) exchangeWithGet(ctx context.Context, svc Service2Definition, c Consumer2Credential, redirectURI, code string) (ParamMap, error) {
	q := url.Values{}
	q.Set("grant_type", "authorization_code")
	q.Set("code", code)
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	if svc.ClientAuthentication == ClientAuthParams {
		q.Set("client_id", c.ClientID)
		q.Set("client_secret", c.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, appendQuery(svc.Token.URL, q), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	if svc.ClientAuthentication != ClientAuthParams {
		req.SetBasicAuth(url.QueryEscape(c.ClientID), url.QueryEscape(c.ClientSecret))
	}
	req.Header.Set("Accept", "application/json")

	params, err := x.do(req, svc.Token.URL)
	if err != nil {
		return nil, err
	}
	if params.Get("access_token") == "" {
		return nil, &TokenExchangeError{Endpoint: endpointLabel(svc.Token.URL), OAuthError: params.Get("error"), Err: errors.New("response missing access_token")}
	}
	if exp := params.ExpiresAt(x.now()); !exp.IsZero() {
		params["expires_at"] = strconv.FormatInt(exp.Unix(), 10)
	}
	return params, nil
}

func (x *ExchangeClient) do(req *http.Request, endpoint string) (ParamMap, error) {
	label := endpointLabel(endpoint)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: label, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, &NetworkError{Endpoint: label, Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The body may carry provider hints; keep it out of the error.
		logging.Debug("OAuth", "Token endpoint %s returned status=%d", label, resp.StatusCode)
		parsed, _ := parseTokenResponse(resp.Header.Get("Content-Type"), body)
		return nil, &TokenExchangeError{Endpoint: label, StatusCode: resp.StatusCode, OAuthError: parsed.Get("error")}
	}

	params, err := parseTokenResponse(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, &TokenExchangeError{Endpoint: label, StatusCode: resp.StatusCode, Err: err}
	}
	return params, nil
}

// parseTokenResponse decodes a form encoded or JSON token response into a
// flat ParamMap. Repeated form keys keep their first value.
func parseTokenResponse(contentType string, body []byte) (ParamMap, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, errors.New("empty token response")
	}

	if strings.Contains(contentType, "json") || strings.HasPrefix(trimmed, "{") {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("malformed JSON token response: %w", err)
		}
		params := make(ParamMap, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				params[k] = val
			case float64:
				params[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				params[k] = strconv.FormatBool(val)
			case nil:
			default:
				b, _ := json.Marshal(val)
				params[k] = string(b)
			}
		}
		return params, nil
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, fmt.Errorf("malformed form token response: %w", err)
	}
	params := make(ParamMap, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params, nil
}

func oauth2Config(svc Service2Definition, c Consumer2Credential, redirectURI string) *oauth2.Config {
	style := oauth2.AuthStyleInHeader
	if svc.ClientAuthentication == ClientAuthParams {
		style = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(strings.ReplaceAll(svc.Scope, ",", " ")),
		Endpoint: oauth2.Endpoint{
			AuthURL:   svc.Authorization.URL,
			TokenURL:  svc.Token.URL,
			AuthStyle: style,
		},
	}
}

func tokenParams(tok *oauth2.Token, now time.Time) ParamMap {
	params := ParamMap{
		"access_token": tok.AccessToken,
		"token_type":   tok.Type(),
	}
	if tok.RefreshToken != "" {
		params["refresh_token"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		params["expires_at"] = strconv.FormatInt(tok.Expiry.Unix(), 10)
		if secs := int64(tok.Expiry.Sub(now).Seconds()); secs > 0 {
			params["expires_in"] = strconv.FormatInt(secs, 10)
		}
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		params["scope"] = scope
	}
	return params
}

// mapOAuth2Error turns x/oauth2 failures into the package error taxonomy.
// x/oauth2 does not wrap transport errors with %w, so the recording
// transport is consulted to tell network faults from provider rejections.
func mapOAuth2Error(endpoint string, err error, rt *recordingTransport) error {
	label := endpointLabel(endpoint)

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		logging.Debug("OAuth", "Token endpoint %s rejected exchange status=%d code=%s", label, status, re.ErrorCode)
		return &TokenExchangeError{Endpoint: label, StatusCode: status, OAuthError: re.ErrorCode}
	}
	if netErr := rt.lastError(); netErr != nil {
		return &NetworkError{Endpoint: label, Err: netErr}
	}
	return &TokenExchangeError{Endpoint: label, Err: err}
}

type recordingTransport struct {
	base   http.RoundTripper
	client *http.Client

	mu  sync.Mutex
	err error
}

func (x *ExchangeClient) recordingClient() *recordingTransport {
	base := x.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	rt := &recordingTransport{base: base}
	rt.client = &http.Client{Transport: rt, Timeout: x.httpClient.Timeout}
	return rt
}

func (t *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(r)
	if err != nil {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}
	return resp, err
}

func (t *recordingTransport) lastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (x *ExchangeClient) startSpan(ctx context.Context, name, service, endpoint string) (context.Context, trace.Span) {
	return x.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("oauth.service", service),
		attribute.String("oauth.endpoint", endpointLabel(endpoint)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCategory(err))
	}
	span.End()
}

// endpointLabel drops query and fragment so URLs can be logged.
func endpointLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

func appendQuery(rawURL string, v url.Values) string {
	if len(v) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + v.Encode()
}
