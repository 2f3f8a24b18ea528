package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundManager(t *testing.T, env *testEnv) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Cache:       env.cache,
		Services:    env.services,
		Consumers:   env.consumers,
		CallbackURL: testCallbackURL,
		BindBrowser: true,
		StateTTL:    5 * time.Minute,
	})
	require.NoError(t, err)
	return m
}

func TestBrowserBinding_CookieAttributes(t *testing.T) {
	resp := &AuthorizationResponse{OAuthState: "rt1", Binding: "b1"}

	t.Run("https callback", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewBrowserBinding(testCallbackURL, 5*time.Minute).Set(rr, resp)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, BindingCookieName("rt1"), c.Name)
		assert.Equal(t, "b1", c.Value)
		assert.Equal(t, "/gadgets/oauthcallback", c.Path)
		assert.Equal(t, 300, c.MaxAge)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	})

	t.Run("plain http callback", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewBrowserBinding("http://localhost:8080/oauthcallback", time.Minute).Set(rr, resp)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.False(t, cookies[0].Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	})

	t.Run("unbound response sets nothing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewBrowserBinding(testCallbackURL, time.Minute).Set(rr, &AuthorizationResponse{OAuthState: "rt1"})
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("disabled binding is a no-op", func(t *testing.T) {
		var b *BrowserBinding
		rr := httptest.NewRecorder()
		b.Set(rr, resp)
		b.Clear(rr, "rt1")
		assert.Empty(t, rr.Result().Cookies())
		assert.NoError(t, b.Verify(httptest.NewRequest(http.MethodGet, "/", nil), "rt1", &SecurityToken{}))
	})
}

func TestBindingCookieName_DistinctPerState(t *testing.T) {
	assert.NotEqual(t, BindingCookieName("a"), BindingCookieName("b"))
	assert.Equal(t, BindingCookieName("a"), BindingCookieName("a"))
}

func TestManager_CallbackRequiresBrowserBinding(t *testing.T) {
	tests := []struct {
		name     string
		protocol ProtocolType
		callback func(state string) string
		wantKey  string
	}{
		{
			name:     "oauth1",
			protocol: ProtocolOAuth1,
			callback: func(state string) string {
				return "/gadgets/oauthcallback?oauth_verifier=v1&oauth_token=" + url.QueryEscape(state)
			},
			wantKey: CacheKey("u1", testAppURL, "twitter"),
		},
		{
			name:     "oauth2",
			protocol: ProtocolOAuth2,
			callback: func(state string) string {
				return "/gadgets/oauthcallback?code=c1&state=" + url.QueryEscape(state)
			},
			wantKey: CacheKey("u1", testAppURL, "google"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			m := newBoundManager(t, env)
			ctx := context.Background()

			resp, err := m.Authorize(ctx, httptest.NewRequest(http.MethodGet, "/", nil),
				&SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: tc.protocol})
			require.NoError(t, err)
			require.NotEmpty(t, resp.Binding)

			raw, err := json.Marshal(resp)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), resp.Binding, "binding must only travel in the cookie")

			rr := httptest.NewRecorder()
			m.BindBrowser(rr, resp)
			cookies := rr.Result().Cookies()
			require.Len(t, cookies, 1)

			// another browser without the cookie
			_, err = m.HandleCallback(ctx, httptest.NewRequest(http.MethodGet, tc.callback(resp.OAuthState), nil))
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.True(t, env.cache.Contains(resp.OAuthState), "a foreign callback must not consume the pending state")

			// a forged cookie value
			forged := httptest.NewRequest(http.MethodGet, tc.callback(resp.OAuthState), nil)
			forged.AddCookie(&http.Cookie{Name: cookies[0].Name, Value: "forged"})
			_, err = m.HandleCallback(ctx, forged)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Nil(t, env.cache.Get(tc.wantKey))

			// the browser that started the flow
			own := httptest.NewRequest(http.MethodGet, tc.callback(resp.OAuthState), nil)
			own.AddCookie(cookies[0])
			granted, err := m.HandleCallback(ctx, own)
			require.NoError(t, err)
			assert.True(t, granted.IsAccessToken)
			assert.False(t, env.cache.Contains(resp.OAuthState))
			assert.NotNil(t, env.cache.Get(tc.wantKey))
		})
	}
}

func TestCallbackHandler_ClearsBindingCookie(t *testing.T) {
	env := newTestEnv(t)
	m := newBoundManager(t, env)

	resp, err := m.Authorize(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil),
		&SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: ProtocolOAuth1})
	require.NoError(t, err)

	set := httptest.NewRecorder()
	m.BindBrowser(set, resp)
	cookies := set.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/gadgets/oauthcallback?oauth_verifier=v1&oauth_token="+url.QueryEscape(resp.OAuthState), nil)
	req.AddCookie(cookies[0])
	rr := httptest.NewRecorder()
	m.CallbackHandler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	cleared := rr.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, cookies[0].Name, cleared[0].Name)
	assert.Empty(t, cleared[0].Value)
	assert.Less(t, cleared[0].MaxAge, 0)
}
