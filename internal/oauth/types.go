package oauth

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ProtocolType selects which OAuth variant a token belongs to.
type ProtocolType int

const (
	ProtocolNone ProtocolType = iota
	ProtocolOAuth1
	ProtocolOAuth2
)

// String makes ProtocolType satisfy the fmt.Stringer interface.
func (p ProtocolType) String() string {
	switch p {
	case ProtocolOAuth1:
		return "oauth"
	case ProtocolOAuth2:
		return "oauth2"
	default:
		return "none"
	}
}

// ParseProtocol maps the gadget runtime's authz values onto a ProtocolType.
func ParseProtocol(s string) ProtocolType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oauth", "oauth1":
		return ProtocolOAuth1
	case "oauth2":
		return ProtocolOAuth2
	default:
		return ProtocolNone
	}
}

// TokenState is the position of a token in the authorization state machine.
type TokenState int

const (
	StateNoToken TokenState = iota
	StateRequestTokenPending
	StateAccessTokenGranted
)

// String makes TokenState satisfy the fmt.Stringer interface.
func (s TokenState) String() string {
	switch s {
	case StateRequestTokenPending:
		return "RequestTokenPending"
	case StateAccessTokenGranted:
		return "AccessTokenGranted"
	default:
		return "NoToken"
	}
}

// SecurityToken is the capability token passed through the whole pipeline.
// It is created per request from the gadget's client state and mutated in
// place by the flow controllers. It never holds consumer secrets.
type SecurityToken struct {
	AppURL      string
	AppID       string
	OwnerID     string
	ViewerID    string
	ServiceName string
	Protocol    ProtocolType

	// Token and TokenSecret hold the OAuth1 request or access pair, or the
	// OAuth2 bearer token (TokenSecret unused).
	Token        string
	TokenSecret  string
	RefreshToken string
	ExpiresAt    time.Time

	State         TokenState
	IsAccessToken bool

	// Binding is set on pending tokens when browser binding is enabled.
	Binding string
}

// Clone returns a copy that can be mutated without affecting the original.
func (t *SecurityToken) Clone() *SecurityToken {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// CacheKey returns the stable key under which the access token for this
// (owner, app, service) triple is cached.
func (t *SecurityToken) CacheKey() string {
	return CacheKey(t.OwnerID, t.AppURL, t.ServiceName)
}

// IsExpired reports whether the token expires within margin. Tokens without
// an expiry never expire.
func (t *SecurityToken) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

func (t *SecurityToken) markPending() {
	t.State = StateRequestTokenPending
	t.IsAccessToken = false
}

func (t *SecurityToken) markGranted() {
	t.State = StateAccessTokenGranted
	t.IsAccessToken = true
}

// CacheKey hashes (owner, app, service) into a fixed length cache key.
func CacheKey(ownerID, appURL, serviceName string) string {
	sum := sha256.Sum256([]byte(ownerID + "\x00" + appURL + "\x00" + serviceName))
	return hex.EncodeToString(sum[:])
}

// ParamLocation controls where OAuth1 parameters travel on a request.
type ParamLocation string

const (
	ParamLocationHeader   ParamLocation = "auth-header"
	ParamLocationPostBody ParamLocation = "post-body"
	ParamLocationQuery    ParamLocation = "uri-query"
)

// ClientAuthentication controls how OAuth2 client credentials reach the token endpoint.
type ClientAuthentication string

const (
	ClientAuthHeader ClientAuthentication = "basic"
	ClientAuthParams ClientAuthentication = "params"
)

// TokenLocation controls where an OAuth2 bearer token is placed on resource requests.
type TokenLocation string

const (
	TokenLocationQuery  TokenLocation = "uri-query"
	TokenLocationHeader TokenLocation = "auth-header"
)

// Endpoint is a provider URL plus the HTTP method used to call it.
type Endpoint struct {
	URL    string
	Method string
}

// MethodOr returns the endpoint method, or def when none was declared.
func (e Endpoint) MethodOr(def string) string {
	if e.Method == "" {
		return def
	}
	return strings.ToUpper(e.Method)
}

// ServiceDefinition is a gadget's declared OAuth1 service.
type ServiceDefinition struct {
	Name          string
	RequestToken  Endpoint
	Authorization Endpoint
	AccessToken   Endpoint
	ParamLocation ParamLocation
}

// Service2Definition is a gadget's declared OAuth2 service.
type Service2Definition struct {
	Name                 string
	Authorization        Endpoint
	Token                Endpoint
	Scope                string
	ClientAuthentication ClientAuthentication
	TokenLocation        TokenLocation
}

// ConsumerCredential is the container's OAuth1 registration for (AppURL, ServiceName).
type ConsumerCredential struct {
	AppURL          string
	ServiceName     string
	ConsumerKey     string
	ConsumerSecret  string
	SignatureMethod string // Only HMAC-SHA1 is supported; empty means HMAC-SHA1
	CallbackURL     string // Overrides the container callback when set
}

// Consumer2Credential is the container's OAuth2 registration for (AppURL, ServiceName).
type Consumer2Credential struct {
	AppURL       string
	ServiceName  string
	ClientID     string
	ClientSecret string
	RedirectURI  string // Overrides the container callback when set
}

// ParamMap is a provider token response flattened to string values.
type ParamMap map[string]string

// Get returns the value for key or the empty string.
func (p ParamMap) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

// ExpiresAt converts an expires_in value into an absolute time.
func (p ParamMap) ExpiresAt(now time.Time) time.Time {
	secs, err := strconv.ParseInt(p.Get("expires_in"), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(secs) * time.Second)
}

// AuthorizationResponse is returned to the gadget runtime when the user must
// approve access at the provider. OAuthState is echoed back on completion.
type AuthorizationResponse struct {
	Version    int    `json:"version"`
	Protocol   string `json:"protocol"`
	Service    string `json:"service"`
	AuthURL    string `json:"oauthApprovalUrl"`
	OAuthState string `json:"oauthState"`

	// Binding is the browser binding value. It travels in a cookie only.
	Binding string `json:"-"`
}

// authorizationResponseVersion is bumped whenever AuthorizationResponse changes shape.
const authorizationResponseVersion = 1
