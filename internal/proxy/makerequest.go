package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/oauth"
	"gadgethost/pkg/logging"
)

// UnparseableCruft prefixes every makeRequest response so the body cannot be
// evaluated as script by a third-party page. Gadget runtimes strip it.
const UnparseableCruft = "throw 1; < don't be evil' >"

const tracerName = "gadgethost/internal/proxy"

// Values of the authz parameter.
const (
	authzNone   = "none"
	authzSigned = "signed"
	authzOAuth  = "oauth"
	authzOAuth2 = "oauth2"
)

// Authorizer is the part of the OAuth manager the proxies use.
type Authorizer interface {
	Sign(ctx context.Context, out, in *http.Request, token *oauth.SecurityToken) (oauth.SignResult, error)
	Authorize(ctx context.Context, r *http.Request, token *oauth.SecurityToken) (*oauth.AuthorizationResponse, error)
	Revoke(ownerID, appURL, serviceName string) bool
	BindBrowser(w http.ResponseWriter, resp *oauth.AuthorizationResponse)
}

// makeRequestEntry is the per-URL value of the makeRequest envelope.
type makeRequestEntry struct {
	RC               int                 `json:"rc"`
	ST               string              `json:"st"`
	Body             string              `json:"body"`
	Headers          map[string][]string `json:"headers,omitempty"`
	OAuthApprovalURL string              `json:"oauthApprovalUrl,omitempty"`
	OAuthState       string              `json:"oauthState,omitempty"`
	OAuthError       string              `json:"oauthError,omitempty"`
	OAuthErrorText   string              `json:"oauthErrorText,omitempty"`
}

// MakeRequestHandler relays a gadget's gadgets.io.makeRequest call,
// attaching credentials according to authz.
type MakeRequestHandler struct {
	auth    Authorizer
	codec   clientstate.Codec
	signed  *SignedFetcher
	client  *http.Client
	maxBody int64
}

// NewMakeRequestHandler creates the handler. signed may be nil, in which
// case authz=signed is rejected.
func NewMakeRequestHandler(auth Authorizer, codec clientstate.Codec, signed *SignedFetcher, opts Options) *MakeRequestHandler {
	return &MakeRequestHandler{
		auth:    auth,
		codec:   codec,
		signed:  signed,
		client:  opts.client(),
		maxBody: opts.maxBody(),
	}
}

func (h *MakeRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	rawURL := r.Form.Get("url")
	target, err := parseTarget(rawURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method := strings.ToUpper(r.Form.Get("httpMethod"))
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead:
	default:
		http.Error(w, "Unsupported httpMethod", http.StatusBadRequest)
		return
	}
	authz := strings.ToLower(r.Form.Get("authz"))
	if authz == "" {
		authz = authzNone
	}

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "proxy.make_request")
	defer span.End()
	span.SetAttributes(
		attribute.String("gadget.authz", authz),
		attribute.String("http.target_host", target.Host),
		attribute.String("http.method", method),
	)

	entry := makeRequestEntry{ST: r.Form.Get("st")}

	out, form, err := newOutbound(ctx, method, target, r.Form)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		token  *oauth.SecurityToken
		result oauth.SignResult
		state  clientstate.State
	)
	switch authz {
	case authzNone:
	case authzSigned, authzOAuth, authzOAuth2:
		state, err = clientstate.FromRequest(h.codec, r)
		if err != nil {
			logging.Warn("Proxy", "Rejected makeRequest with %s authz: %v", authz, err)
			h.writeOAuthError(w, rawURL, entry, err)
			return
		}
		if authz == authzSigned {
			if h.signed == nil {
				http.Error(w, "Signed fetch is not enabled", http.StatusBadRequest)
				return
			}
			if err := h.signed.Sign(ctx, out, state, form); err != nil {
				logging.Error("Proxy", err, "Signed fetch for %s failed", state.AppURL())
				h.writeOAuthError(w, rawURL, entry, err)
				return
			}
			break
		}
		protocol := oauth.ProtocolOAuth1
		if authz == authzOAuth2 {
			protocol = oauth.ProtocolOAuth2
		}
		token = state.ToToken(protocol, serviceName(r.Form))
		result, err = h.auth.Sign(ctx, out, r, token)
		if err != nil {
			logging.Error("Proxy", err, "Signing for %s failed (category=%s)", state.AppURL(), oauth.ErrorCategory(err))
			span.SetStatus(codes.Error, oauth.ErrorCategory(err))
			h.writeOAuthError(w, rawURL, entry, err)
			return
		}
		if result.ApprovalRequired {
			h.auth.BindBrowser(w, result.Authorization)
			entry.RC = http.StatusOK
			entry.OAuthApprovalURL = result.Authorization.AuthURL
			entry.OAuthState = result.Authorization.OAuthState
			writeEnvelope(w, rawURL, entry)
			return
		}
	default:
		http.Error(w, "Unknown authz", http.StatusBadRequest)
		return
	}

	resp, err := h.client.Do(out)
	if err != nil {
		span.SetStatus(codes.Error, "upstream fetch failed")
		logging.Warn("Proxy", "Fetch from %s failed: %v", target.Host, err)
		entry.RC = http.StatusBadGateway
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			entry.RC = http.StatusGatewayTimeout
		}
		writeEnvelope(w, rawURL, entry)
		return
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized && result.Signed {
		if oauth.ParseChallenge(resp.Header.Get("WWW-Authenticate")).TokenRejected() {
			h.auth.Revoke(state.Owner, state.AppURL(), result.Service)
			logging.Info("Proxy", "Provider rejected the %s token for %s, cached token dropped", result.Service, state.AppURL())
			entry.OAuthError = codeTokenRejected
			entry.OAuthErrorText = errorTexts[codeTokenRejected]
		}
	}

	body, err := readBody(resp, h.maxBody)
	if err != nil {
		logging.Warn("Proxy", "Reading response from %s failed: %v", target.Host, err)
		entry.RC = http.StatusBadGateway
		writeEnvelope(w, rawURL, entry)
		return
	}
	entry.RC = resp.StatusCode
	entry.Body = string(toUTF8(resp.Header.Get("Content-Type"), body))
	entry.Headers = responseHeaders(resp.Header)
	writeEnvelope(w, rawURL, entry)
}

func (h *MakeRequestHandler) writeOAuthError(w http.ResponseWriter, rawURL string, entry makeRequestEntry, err error) {
	code := errorCode(err)
	entry.RC = errorStatus(code)
	entry.OAuthError = code
	entry.OAuthErrorText = errorTexts[code]
	writeEnvelope(w, rawURL, entry)
}

// newOutbound builds the request sent upstream. It returns the parsed form
// of a url-encoded postData so signed fetch can include it in the signature.
func newOutbound(ctx context.Context, method string, target *url.URL, in url.Values) (*http.Request, url.Values, error) {
	postData := in.Get("postData")
	var body *strings.Reader
	if postData != "" && (method == http.MethodPost || method == http.MethodPut) {
		body = strings.NewReader(postData)
	}

	var (
		out *http.Request
		err error
	)
	if body != nil {
		out, err = http.NewRequestWithContext(ctx, method, target.String(), body)
	} else {
		out, err = http.NewRequestWithContext(ctx, method, target.String(), nil)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := applyHeaders(out, in.Get("headers")); err != nil {
		return nil, nil, err
	}

	var form url.Values
	if body != nil {
		if out.Header.Get("Content-Type") == "" {
			out.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if strings.HasPrefix(out.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			form, _ = url.ParseQuery(postData)
		}
	}
	return out, form, nil
}

func serviceName(form url.Values) string {
	if v := form.Get("oauthServiceName"); v != "" {
		return v
	}
	return form.Get("OAUTH_SERVICE_NAME")
}

// writeEnvelope writes the cruft-prefixed JSON object keyed by the
// requested URL.
func writeEnvelope(w http.ResponseWriter, rawURL string, entry makeRequestEntry) {
	payload, err := json.Marshal(map[string]makeRequestEntry{rawURL: entry})
	if err != nil {
		logging.Error("Proxy", err, "Failed to encode makeRequest response")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment;filename=p.txt")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(UnparseableCruft))
	_, _ = w.Write(payload)
}
