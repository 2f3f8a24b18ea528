package proxy

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/text/encoding/htmlindex"
)

// Options bound the proxies.
type Options struct {
	// Client performs outbound fetches. Nil builds one from Timeout.
	Client        *http.Client
	Timeout       time.Duration
	MaxBodyBytes  int64
	ConcatMaxURLs int
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return NewClient(o.Timeout)
}

const defaultMaxBodyBytes = 2 << 20

// maxFormBytes bounds the gadget's own makeRequest form, postData included.
// It is independent of MaxBodyBytes, which bounds upstream responses.
const maxFormBytes = 1 << 20

func (o Options) maxBody() int64 {
	if o.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return o.MaxBodyBytes
}

// NewClient returns the outbound client used for proxied fetches. Requests
// are traced through otelhttp.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// errBodyTooLarge is returned when an upstream body exceeds MaxBodyBytes.
var errBodyTooLarge = errors.New("upstream response too large")

// parseTarget accepts absolute http and https URLs only.
func parseTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url parameter is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url must be an absolute http or https url")
	}
	return u, nil
}

// readBody reads at most limit bytes of resp.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errBodyTooLarge
	}
	return b, nil
}

// toUTF8 transcodes body from the charset named in contentType. Bodies with
// no charset, an unknown one, or one that fails to decode are returned as is.
func toUTF8(contentType string, body []byte) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return body
	}
	enc, err := htmlindex.Get(params["charset"])
	if err != nil {
		return body
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}

// blockedRequestHeaders are never taken from the gadget. The container
// sets credentials itself; hop-by-hop headers belong to the transport.
var blockedRequestHeaders = map[string]bool{
	"Authorization":       true,
	"Connection":          true,
	"Content-Length":      true,
	"Cookie":              true,
	"Expect":              true,
	"Host":                true,
	"Keep-Alive":          true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// applyHeaders copies the url-encoded headers parameter onto out.
func applyHeaders(out *http.Request, encoded string) error {
	if encoded == "" {
		return nil
	}
	v, err := url.ParseQuery(encoded)
	if err != nil {
		return fmt.Errorf("invalid headers parameter: %w", err)
	}
	for name, values := range v {
		canon := http.CanonicalHeaderKey(strings.TrimSpace(name))
		if !httpguts.ValidHeaderFieldName(canon) {
			return fmt.Errorf("invalid header name %q", name)
		}
		if blockedRequestHeaders[canon] {
			continue
		}
		for _, val := range values {
			if !httpguts.ValidHeaderFieldValue(val) {
				return fmt.Errorf("invalid value for header %s", canon)
			}
			out.Header.Add(canon, val)
		}
	}
	return nil
}

// exposedResponseHeaders are returned to the gadget in the envelope.
var exposedResponseHeaders = []string{
	"Cache-Control",
	"Content-Type",
	"Etag",
	"Expires",
	"Last-Modified",
	"Location",
}

func responseHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string)
	for _, name := range exposedResponseHeaders {
		if vs := h.Values(name); len(vs) > 0 {
			out[strings.ToLower(name)] = vs
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
