package oauth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	signatureMethodHMACSHA1 = "HMAC-SHA1"
	oauthVersion            = "1.0"
)

// SignParams are the credentials and extra parameters for one OAuth1 signature.
type SignParams struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
	Callback       string
	Verifier       string

	// Extra holds form body parameters that take part in the signature.
	Extra url.Values
}

// Clock returns the current time.
type Clock func() time.Time

// NonceSource returns a fresh nonce.
type NonceSource func() string

// SignatureEngine computes OAuth 1.0a HMAC-SHA1 signatures (RFC 5849 section 3.4).
// For a fixed clock and nonce source the output is deterministic.
type SignatureEngine struct {
	now   Clock
	nonce NonceSource
}

// NewSignatureEngine returns an engine using the wall clock and random nonces.
func NewSignatureEngine() *SignatureEngine {
	return NewSignatureEngineWith(time.Now, func() string {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	})
}

// NewSignatureEngineWith returns an engine with an injected clock and nonce source.
func NewSignatureEngineWith(now Clock, nonce NonceSource) *SignatureEngine {
	return &SignatureEngine{now: now, nonce: nonce}
}

// Sign returns the Authorization header value for the request.
func (e *SignatureEngine) Sign(method, rawURL string, p SignParams) (string, error) {
	oauthParams, err := e.signedParams(method, rawURL, p)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=\"%s\"", percentEncode(k), percentEncode(oauthParams[k]))
	}
	return b.String(), nil
}

// SignQuery returns the OAuth parameters, including the signature, as
// url.Values. Used when a service wants them in the query or form body.
func (e *SignatureEngine) SignQuery(method, rawURL string, p SignParams) (url.Values, error) {
	oauthParams, err := e.signedParams(method, rawURL, p)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	for k, val := range oauthParams {
		v.Set(k, val)
	}
	return v, nil
}

func (e *SignatureEngine) signedParams(method, rawURL string, p SignParams) (map[string]string, error) {
	if p.ConsumerKey == "" {
		return nil, fmt.Errorf("consumer key is required")
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     p.ConsumerKey,
		"oauth_nonce":            e.nonce(),
		"oauth_signature_method": signatureMethodHMACSHA1,
		"oauth_timestamp":        strconv.FormatInt(e.now().Unix(), 10),
		"oauth_version":          oauthVersion,
	}
	if p.Token != "" {
		oauthParams["oauth_token"] = p.Token
	}
	if p.Callback != "" {
		oauthParams["oauth_callback"] = p.Callback
	}
	if p.Verifier != "" {
		oauthParams["oauth_verifier"] = p.Verifier
	}

	base, err := SignatureBaseString(method, rawURL, oauthParams, p.Extra)
	if err != nil {
		return nil, err
	}
	oauthParams["oauth_signature"] = hmacSHA1(base, p.ConsumerSecret, p.TokenSecret)
	return oauthParams, nil
}

// SignatureBaseString builds the RFC 5849 section 3.4.1 base string. Query
// parameters of rawURL are included in the parameter set and dropped from
// the normalized URL.
func SignatureBaseString(method, rawURL string, oauthParams map[string]string, extra url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", rawURL)
	}

	type pair struct{ k, v string }
	var pairs []pair
	add := func(k, v string) {
		pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
	}
	for k, v := range oauthParams {
		if k == "oauth_signature" {
			continue
		}
		add(k, v)
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			add(k, v)
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			add(k, v)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var params strings.Builder
	for i, p := range pairs {
		if i > 0 {
			params.WriteByte('&')
		}
		params.WriteString(p.k)
		params.WriteByte('=')
		params.WriteString(p.v)
	}

	return strings.ToUpper(method) + "&" +
		percentEncode(normalizeURL(u)) + "&" +
		percentEncode(params.String()), nil
}

func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" &&
		!(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func hmacSHA1(base, consumerSecret, tokenSecret string) string {
	key := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode applies RFC 3986 encoding: only ALPHA, DIGIT, '-', '.', '_'
// and '~' are left as is.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// BearerHeader returns the OAuth2 Authorization header value.
func BearerHeader(token string) string {
	return "Bearer " + token
}

// BearerQuery returns the OAuth2 access_token query fragment.
func BearerQuery(token string) string {
	return "access_token=" + url.QueryEscape(token)
}
