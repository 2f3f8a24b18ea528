package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	testAppURL      = "http://x/gadget.xml"
	testCallbackURL = "https://container.test/gadgets/oauthcallback"
)

// fakeServices resolves services with the same selection rules as the
// gadget registry: an empty name picks the only declared service.
type fakeServices struct {
	v1 map[string][]ServiceDefinition
	v2 map[string][]Service2Definition
}

func (f *fakeServices) ResolveService(_ context.Context, appURL, name string) (ServiceDefinition, error) {
	list := f.v1[appURL]
	if name == "" {
		switch len(list) {
		case 0:
			return ServiceDefinition{}, ErrServiceNotFound
		case 1:
			return list[0], nil
		default:
			return ServiceDefinition{}, ErrAmbiguousService
		}
	}
	for _, s := range list {
		if s.Name == name {
			return s, nil
		}
	}
	return ServiceDefinition{}, ErrServiceNotFound
}

func (f *fakeServices) ResolveService2(_ context.Context, appURL, name string) (Service2Definition, error) {
	list := f.v2[appURL]
	if name == "" {
		switch len(list) {
		case 0:
			return Service2Definition{}, ErrServiceNotFound
		case 1:
			return list[0], nil
		default:
			return Service2Definition{}, ErrAmbiguousService
		}
	}
	for _, s := range list {
		if s.Name == name {
			return s, nil
		}
	}
	return Service2Definition{}, ErrServiceNotFound
}

type fakeConsumers struct {
	v1 map[string]ConsumerCredential
	v2 map[string]Consumer2Credential
}

func (f *fakeConsumers) Consumer(_ context.Context, appURL, service string) (ConsumerCredential, error) {
	c, ok := f.v1[appURL+"|"+service]
	if !ok {
		return ConsumerCredential{}, ErrConsumerNotFound
	}
	return c, nil
}

func (f *fakeConsumers) Consumer2(_ context.Context, appURL, service string) (Consumer2Credential, error) {
	c, ok := f.v2[appURL+"|"+service]
	if !ok {
		return Consumer2Credential{}, ErrConsumerNotFound
	}
	return c, nil
}

// oauth1Provider is a minimal OAuth 1.0a provider. Each request token call
// issues rt1, rt2, ... and the access token for rtN is atN.
type oauth1Provider struct {
	*httptest.Server

	mu           sync.Mutex
	issued       int
	lastAuthz    string
	failRequests bool
}

func newOAuth1Provider(t *testing.T) *oauth1Provider {
	t.Helper()
	p := &oauth1Provider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/request_token", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.failRequests {
			http.Error(w, "secret provider detail", http.StatusInternalServerError)
			return
		}
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_callback="`) {
			http.Error(w, "missing callback", http.StatusBadRequest)
			return
		}
		p.issued++
		fmt.Fprintf(w, "oauth_token=rt%d&oauth_token_secret=rs%d&oauth_callback_confirmed=true", p.issued, p.issued)
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		p.mu.Lock()
		p.lastAuthz = authz
		p.mu.Unlock()
		if !strings.Contains(authz, `oauth_verifier="v1"`) {
			http.Error(w, "bad verifier", http.StatusUnauthorized)
			return
		}
		i := strings.Index(authz, `oauth_token="rt`)
		if i < 0 {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		n := strings.TrimPrefix(authz[i:], `oauth_token="rt`)
		n = n[:strings.Index(n, `"`)]
		fmt.Fprintf(w, "oauth_token=at%s&oauth_token_secret=as%s", n, n)
	})
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *oauth1Provider) service(name string) ServiceDefinition {
	return ServiceDefinition{
		Name:          name,
		RequestToken:  Endpoint{URL: p.URL + "/request_token", Method: http.MethodPost},
		Authorization: Endpoint{URL: p.URL + "/authorize"},
		AccessToken:   Endpoint{URL: p.URL + "/access_token", Method: http.MethodPost},
		ParamLocation: ParamLocationHeader,
	}
}

// oauth2Provider exchanges code "c1" for at2/rt2 and refreshes rt2 into at3.
type oauth2Provider struct {
	*httptest.Server
}

func newOAuth2Provider(t *testing.T) *oauth2Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, secret, ok := r.BasicAuth()
		if !ok {
			id, secret = r.Form.Get("client_id"), r.Form.Get("client_secret")
		}
		if id != "client-id" || secret != "client-secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client", "error_description": "secret provider detail"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Form.Get("grant_type") == "authorization_code" && r.Form.Get("code") == "c1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "at2", "token_type": "Bearer", "expires_in": 3600, "refresh_token": "rt2",
			})
		case r.Form.Get("grant_type") == "refresh_token" && r.Form.Get("refresh_token") == "rt2":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "at3", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "secret provider detail"})
		}
	})
	p := &oauth2Provider{Server: httptest.NewServer(mux)}
	t.Cleanup(p.Close)
	return p
}

func (p *oauth2Provider) service(name string) Service2Definition {
	return Service2Definition{
		Name:                 name,
		Authorization:        Endpoint{URL: p.URL + "/auth"},
		Token:                Endpoint{URL: p.URL + "/token", Method: http.MethodPost},
		Scope:                "contacts profile",
		ClientAuthentication: ClientAuthHeader,
		TokenLocation:        TokenLocationHeader,
	}
}

type testEnv struct {
	cache     *TokenCache
	services  *fakeServices
	consumers *fakeConsumers
	p1        *oauth1Provider
	p2        *oauth2Provider
	manager   *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	p1 := newOAuth1Provider(t)
	p2 := newOAuth2Provider(t)

	env := &testEnv{
		cache: NewTokenCache(TokenCacheOptions{}),
		services: &fakeServices{
			v1: map[string][]ServiceDefinition{testAppURL: {p1.service("twitter")}},
			v2: map[string][]Service2Definition{testAppURL: {p2.service("google")}},
		},
		consumers: &fakeConsumers{
			v1: map[string]ConsumerCredential{
				testAppURL + "|twitter": {AppURL: testAppURL, ServiceName: "twitter", ConsumerKey: "ck", ConsumerSecret: "cs"},
			},
			v2: map[string]Consumer2Credential{
				testAppURL + "|google": {AppURL: testAppURL, ServiceName: "google", ClientID: "client-id", ClientSecret: "client-secret"},
			},
		},
		p1: p1,
		p2: p2,
	}
	t.Cleanup(env.cache.Stop)

	m, err := NewManager(ManagerConfig{
		Cache:       env.cache,
		Services:    env.services,
		Consumers:   env.consumers,
		CallbackURL: testCallbackURL,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	env.manager = m
	return env
}

func (e *testEnv) deps() FlowDeps {
	return FlowDeps{
		Cache:       e.cache,
		Services:    e.services,
		Consumers:   e.consumers,
		Exchange:    NewExchangeClient(nil, nil),
		Signature:   NewSignatureEngine(),
		CallbackURL: testCallbackURL,
	}
}
