package proxy

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/oauth"
)

// SignedFetchService is the consumer registration used for authz=signed.
// Register it for "*" to sign every gadget with the container key.
const SignedFetchService = "signed-fetch"

// opensocialParams identify the user and gadget to the receiving server.
// Values supplied by the gadget are replaced, never trusted.
var opensocialParams = []string{
	"opensocial_owner_id",
	"opensocial_viewer_id",
	"opensocial_app_url",
	"opensocial_app_id",
	"opensocial_container",
}

// SignedFetcher implements two-legged OAuth signed fetch: the container
// vouches for the owner and viewer with its own consumer key.
type SignedFetcher struct {
	consumers oauth.ConsumerStore
	engine    *oauth.SignatureEngine
}

// NewSignedFetcher creates a signed fetcher. A nil engine uses the default.
func NewSignedFetcher(consumers oauth.ConsumerStore, engine *oauth.SignatureEngine) *SignedFetcher {
	if engine == nil {
		engine = oauth.NewSignatureEngine()
	}
	return &SignedFetcher{consumers: consumers, engine: engine}
}

// Sign adds the opensocial_* parameters and an HMAC-SHA1 signature to the
// query of out. form holds url-encoded body parameters, which are signed too.
func (s *SignedFetcher) Sign(ctx context.Context, out *http.Request, st clientstate.State, form url.Values) error {
	appURL := st.AppURL()
	c, err := s.consumers.Consumer(ctx, appURL, SignedFetchService)
	if err != nil {
		return &oauth.ConfigurationError{AppURL: appURL, ServiceName: SignedFetchService, Err: err}
	}

	q := out.URL.Query()
	for _, p := range opensocialParams {
		q.Del(p)
	}
	for k := range q {
		if strings.HasPrefix(k, "oauth_") {
			q.Del(k)
		}
	}
	q.Set("opensocial_owner_id", st.Owner)
	q.Set("opensocial_viewer_id", st.Viewer)
	q.Set("opensocial_app_url", appURL)
	if st.App != "" {
		q.Set("opensocial_app_id", st.App)
	}
	if st.Container != "" {
		q.Set("opensocial_container", st.Container)
	}
	out.URL.RawQuery = q.Encode()

	signed, err := s.engine.SignQuery(out.Method, out.URL.String(), oauth.SignParams{
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
		Extra:          form,
	})
	if err != nil {
		return err
	}
	for k, vs := range signed {
		q[k] = vs
	}
	out.URL.RawQuery = q.Encode()
	return nil
}
