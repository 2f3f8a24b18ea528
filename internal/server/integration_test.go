package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/config"
	"gadgethost/internal/consumer"
	"gadgethost/internal/gadget"
	"gadgethost/internal/oauth"
	"gadgethost/internal/proxy"
)

const integrationAppURL = "http://gadgets.test/contacts.xml"

type envelopeEntry struct {
	RC               int    `json:"rc"`
	Body             string `json:"body"`
	OAuthApprovalURL string `json:"oauthApprovalUrl"`
	OAuthState       string `json:"oauthState"`
	OAuthError       string `json:"oauthError"`
}

// newProvider serves an OAuth 1.0a provider plus one protected resource.
func newProvider(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var issued atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/request_token", func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		fmt.Fprintf(w, "oauth_token=rt%d&oauth_token_secret=rs%d&oauth_callback_confirmed=true", n, n)
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.Contains(authz, `oauth_token="rt1"`) || !strings.Contains(authz, `oauth_verifier="v1"`) {
			http.Error(w, "bad verifier", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "oauth_token=at1&oauth_token_secret=as1")
	})
	mux.HandleFunc("/api/contacts", func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.Contains(authz, `oauth_token="at1"`) || !strings.Contains(authz, `oauth_consumer_key="ck"`) {
			w.Header().Set("WWW-Authenticate", `OAuth realm="api"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `["alice","bob"]`)
	})
	p := httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p, &issued
}

func gadgetXML(providerURL string) string {
	return `<Module><ModulePrefs title="Contacts"><OAuth>
  <Service name="contacts">
    <Request url="` + providerURL + `/request_token" method="POST"/>
    <Access url="` + providerURL + `/access_token" method="POST"/>
    <Authorization url="` + providerURL + `/authorize"/>
  </Service>
</OAuth></ModulePrefs></Module>`
}

func TestOAuth1FlowEndToEnd(t *testing.T) {
	provider, issued := newProvider(t)

	registry := gadget.NewRegistry(nil)
	spec, err := gadget.ParseSpec(integrationAppURL, strings.NewReader(gadgetXML(provider.URL)))
	require.NoError(t, err)
	registry.Register(spec)

	consumersPath := filepath.Join(t.TempDir(), "consumers.yaml")
	require.NoError(t, os.WriteFile(consumersPath, []byte(`consumers:
  - appUrl: `+integrationAppURL+`
    service: contacts
    protocol: oauth
    consumerKey: ck
    consumerSecret: cs
`), 0o600))
	store, err := consumer.NewFileStore(consumersPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.GetDefaultConfig()
	cache := oauth.NewTokenCache(oauth.TokenCacheOptions{TTL: cfg.OAuth.CacheTTL, StateTTL: cfg.OAuth.StateTTL})
	t.Cleanup(cache.Stop)
	mgr, err := oauth.NewManager(oauth.ManagerConfig{
		Cache:       cache,
		Services:    registry,
		Consumers:   store,
		HTTPClient:  provider.Client(),
		CallbackURL: cfg.CallbackURL(),
		BindBrowser: cfg.OAuth.BindBrowser,
		StateTTL:    cfg.OAuth.StateTTL,
	})
	require.NoError(t, err)

	codec, err := clientstate.NewCodec(cfg.ClientState, "integration-secret")
	require.NoError(t, err)
	opts := proxy.Options{Client: provider.Client()}
	srv := New(cfg, Handlers{
		MakeRequest: proxy.NewMakeRequestHandler(mgr, codec, nil, opts),
		Concat:      proxy.NewConcatHandler(opts),
		Authorize:   proxy.NewAuthorizeHandler(mgr, codec),
		Callback:    mgr.CallbackHandler(),
	})
	container := httptest.NewServer(srv.Handler())
	defer container.Close()

	st, err := codec.Wrap(clientstate.State{Owner: "alice", Viewer: "alice", URL: integrationAppURL, Container: "default"})
	require.NoError(t, err)
	target := provider.URL + "/api/contacts"

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	browser := &http.Client{Jar: jar}
	callbackURL := container.URL + "/gadgets/oauthcallback?oauth_token=rt1&oauth_verifier=v1"

	makeRequest := func() envelopeEntry {
		t.Helper()
		resp, err := browser.PostForm(container.URL+"/gadgets/makeRequest", url.Values{
			"url":   {target},
			"authz": {"oauth"},
			"st":    {st},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(raw), proxy.UnparseableCruft))

		var envelope map[string]envelopeEntry
		require.NoError(t, json.Unmarshal(raw[len(proxy.UnparseableCruft):], &envelope))
		return envelope[target]
	}

	// No token yet: the gadget gets an approval URL.
	first := makeRequest()
	require.NotEmpty(t, first.OAuthApprovalURL)
	assert.Contains(t, first.OAuthApprovalURL, provider.URL+"/authorize")
	assert.Contains(t, first.OAuthApprovalURL, "oauth_token=rt1")
	assert.Empty(t, first.Body)

	// A callback replayed from a different browser is refused.
	stranger, err := http.Get(callbackURL)
	require.NoError(t, err)
	stranger.Body.Close()
	assert.Equal(t, http.StatusBadRequest, stranger.StatusCode)
	assert.Nil(t, mgr.AccessToken("alice", integrationAppURL, "contacts"))

	// The user approves and the provider redirects back to the container.
	cb, err := browser.Get(callbackURL)
	require.NoError(t, err)
	cb.Body.Close()
	require.Equal(t, http.StatusOK, cb.StatusCode)

	at := mgr.AccessToken("alice", integrationAppURL, "contacts")
	require.NotNil(t, at)
	assert.Equal(t, "at1", at.Token)

	// The retry is signed with the access token.
	second := makeRequest()
	assert.Equal(t, http.StatusOK, second.RC)
	assert.Equal(t, `["alice","bob"]`, second.Body)
	assert.Empty(t, second.OAuthApprovalURL)
	assert.Equal(t, int32(1), issued.Load(), "no second request token once approved")

	// Replaying the callback finds no pending token.
	replay, err := browser.Get(callbackURL)
	require.NoError(t, err)
	replay.Body.Close()
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
}
