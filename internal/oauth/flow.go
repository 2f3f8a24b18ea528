package oauth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// ServiceResolver looks up the OAuth services a gadget declares. An empty
// name selects the gadget's only service of that protocol; gadgets with
// several services must be addressed by name.
type ServiceResolver interface {
	ResolveService(ctx context.Context, appURL, name string) (ServiceDefinition, error)
	ResolveService2(ctx context.Context, appURL, name string) (Service2Definition, error)
}

// ConsumerStore returns the container's registered credentials for a
// gadget service. Implementations return ErrConsumerNotFound when missing.
type ConsumerStore interface {
	Consumer(ctx context.Context, appURL, serviceName string) (ConsumerCredential, error)
	Consumer2(ctx context.Context, appURL, serviceName string) (Consumer2Credential, error)
}

// FlowController drives one OAuth protocol through
// NoToken -> RequestTokenPending -> AccessTokenGranted.
type FlowController interface {
	Protocol() ProtocolType

	// CanHandle reports whether this flow owns token, or, when token is nil,
	// whether r carries this protocol's callback marker.
	CanHandle(r *http.Request, token *SecurityToken) bool

	// BindService resolves the gadget's service for token and records its
	// name and protocol on token.
	BindService(ctx context.Context, token *SecurityToken) error

	// ProcessRequestToken starts authorization and caches the pending token.
	ProcessRequestToken(ctx context.Context, r *http.Request, token *SecurityToken) (*AuthorizationResponse, error)

	// ProcessAccessToken completes authorization for a pending token using the
	// verifier (OAuth1) or code (OAuth2) returned by the provider.
	ProcessAccessToken(ctx context.Context, token *SecurityToken, verifier string) (*SecurityToken, error)

	// ProcessCallback finds the pending token named by the callback request
	// and completes authorization.
	ProcessCallback(ctx context.Context, r *http.Request) (*SecurityToken, error)

	// ApplyCredentials signs out with an access token.
	ApplyCredentials(ctx context.Context, out *http.Request, token *SecurityToken) error
}

// FlowDeps are shared by both flow controllers.
type FlowDeps struct {
	Cache     *TokenCache
	Services  ServiceResolver
	Consumers ConsumerStore
	Exchange  *ExchangeClient
	Signature *SignatureEngine

	// CallbackURL is the container's callback endpoint, used unless the
	// consumer registration overrides it.
	CallbackURL string

	// Binding, when set, requires callbacks to come from the browser that
	// started the flow.
	Binding *BrowserBinding
}

// bind attaches a fresh browser binding to a pending token.
func (d FlowDeps) bind(token *SecurityToken) {
	if d.Binding != nil {
		token.Binding = newBindingValue()
	}
}

// verifyBinding runs before the pending token is taken, so a callback from
// another browser cannot consume it.
func (d FlowDeps) verifyBinding(r *http.Request, key string) error {
	if d.Binding == nil {
		return nil
	}
	pending := d.Cache.Get(key)
	if pending == nil || pending.IsAccessToken {
		return &InvalidStateError{Reason: "unknown or expired state"}
	}
	return d.Binding.Verify(r, key, pending)
}

func configError(token *SecurityToken, name string, err error) error {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &ConfigurationError{AppURL: token.AppURL, ServiceName: name, Err: err}
}

func requireAccess(token *SecurityToken) error {
	if token == nil {
		return &InvalidStateError{Reason: "no security token"}
	}
	if !token.IsAccessToken {
		return &InvalidStateError{Reason: "token is not an access token"}
	}
	return nil
}

func requirePending(token *SecurityToken) error {
	if token == nil || token.State != StateRequestTokenPending {
		return &InvalidStateError{Reason: "token is not awaiting authorization"}
	}
	return nil
}

// readFormBody returns the url-encoded body of r, if any, and restores it so
// the request can still be sent.
func readFormBody(r *http.Request) (url.Values, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/x-www-form-urlencoded" {
		return nil, nil
	}
	b, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return url.ParseQuery(string(b))
}

func setFormBody(r *http.Request, v url.Values) {
	encoded := v.Encode()
	r.Body = io.NopCloser(bytes.NewBufferString(encoded))
	r.ContentLength = int64(len(encoded))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewBufferString(encoded)), nil
	}
}

// signingURL is the URL of r as the provider will see it.
func signingURL(r *http.Request) string {
	u := *r.URL
	u.Fragment = ""
	return u.String()
}
