package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenResponse(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        ParamMap
		wantErr     bool
	}{
		{
			name: "form encoded",
			body: "oauth_token=abc&oauth_token_secret=x%2By&oauth_token=ignored",
			want: ParamMap{"oauth_token": "abc", "oauth_token_secret": "x+y"},
		},
		{
			name:        "json",
			contentType: "application/json; charset=utf-8",
			body:        `{"access_token":"at","expires_in":3600,"scope":null,"ok":true}`,
			want:        ParamMap{"access_token": "at", "expires_in": "3600", "ok": "true"},
		},
		{
			name: "json sniffed without content type",
			body: ` {"access_token":"at"}`,
			want: ParamMap{"access_token": "at"},
		},
		{
			name:    "empty",
			body:    "  ",
			wantErr: true,
		},
		{
			name:        "broken json",
			contentType: "application/json",
			body:        `{"access_token":`,
			wantErr:     true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTokenResponse(tc.contentType, []byte(tc.body))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParamMap_ExpiresAt(t *testing.T) {
	now := time.Unix(1000, 0)
	assert.Equal(t, time.Unix(1060, 0), ParamMap{"expires_in": "60"}.ExpiresAt(now))
	assert.True(t, ParamMap{"expires_in": "soon"}.ExpiresAt(now).IsZero())
	assert.True(t, ParamMap(nil).ExpiresAt(now).IsZero())
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestExchange_OAuth1NetworkError(t *testing.T) {
	base := closedServerURL(t)
	x := NewExchangeClient(&http.Client{Timeout: 2 * time.Second}, nil)

	_, err := x.AcquireRequestToken(context.Background(), ServiceDefinition{
		Name:         "svc",
		RequestToken: Endpoint{URL: base + "/request_token?secret=1"},
	}, ConsumerCredential{ConsumerKey: "ck", ConsumerSecret: "cs"}, testCallbackURL)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.NotContains(t, netErr.Endpoint, "secret=1")
	assert.Equal(t, "network", ErrorCategory(err))
}

func TestExchange_OAuth2NetworkError(t *testing.T) {
	base := closedServerURL(t)
	x := NewExchangeClient(&http.Client{Timeout: 2 * time.Second}, nil)

	_, err := x.AcquireAuthorizationCodeToken(context.Background(), Service2Definition{
		Name:  "svc",
		Token: Endpoint{URL: base + "/token"},
	}, Consumer2Credential{ClientID: "id", ClientSecret: "s"}, testCallbackURL, "code")

	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr), "got %T: %v", err, err)
}

func TestExchange_OAuth2GetEndpointWithParamAuth(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "want GET", http.StatusMethodNotAllowed)
			return
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte("access_token=at&expires_in=120"))
	}))
	defer srv.Close()

	x := NewExchangeClient(nil, nil)
	params, err := x.AcquireAuthorizationCodeToken(context.Background(), Service2Definition{
		Name:                 "svc",
		Token:                Endpoint{URL: srv.URL + "/token", Method: "get"},
		ClientAuthentication: ClientAuthParams,
	}, Consumer2Credential{ClientID: "id", ClientSecret: "s"}, testCallbackURL, "c1")
	require.NoError(t, err)

	assert.Equal(t, "at", params.Get("access_token"))
	assert.NotEmpty(t, params.Get("expires_at"))
	assert.Equal(t, "authorization_code", gotQuery["grant_type"])
	assert.Equal(t, "c1", gotQuery["code"])
	assert.Equal(t, "id", gotQuery["client_id"])
	assert.Equal(t, "s", gotQuery["client_secret"])
	assert.Equal(t, testCallbackURL, gotQuery["redirect_uri"])
}

func TestExchange_OAuth2PostWithParamAuth(t *testing.T) {
	p := newOAuth2Provider(t)
	svc := p.service("google")
	svc.ClientAuthentication = ClientAuthParams

	params, err := NewExchangeClient(nil, nil).AcquireAuthorizationCodeToken(context.Background(), svc,
		Consumer2Credential{ClientID: "client-id", ClientSecret: "client-secret"}, testCallbackURL, "c1")
	require.NoError(t, err)
	assert.Equal(t, "at2", params.Get("access_token"))
	assert.Equal(t, "rt2", params.Get("refresh_token"))
	assert.Equal(t, "Bearer", params.Get("token_type"))
}

func TestExchange_OAuth2WrongClient(t *testing.T) {
	p := newOAuth2Provider(t)

	_, err := NewExchangeClient(nil, nil).AcquireAuthorizationCodeToken(context.Background(), p.service("google"),
		Consumer2Credential{ClientID: "client-id", ClientSecret: "wrong"}, testCallbackURL, "c1")

	var exchErr *TokenExchangeError
	require.True(t, errors.As(err, &exchErr))
	assert.Equal(t, http.StatusUnauthorized, exchErr.StatusCode)
	assert.Equal(t, "invalid_client", exchErr.OAuthError)
	assert.NotContains(t, err.Error(), "secret provider detail")
}

func TestExchange_RefreshRequiresToken(t *testing.T) {
	_, err := NewExchangeClient(nil, nil).RefreshAccessToken(context.Background(), Service2Definition{}, Consumer2Credential{}, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExchange_RequestTokenMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("oauth_callback_confirmed=true"))
	}))
	defer srv.Close()

	_, err := NewExchangeClient(nil, nil).AcquireRequestToken(context.Background(), ServiceDefinition{
		RequestToken: Endpoint{URL: srv.URL},
	}, ConsumerCredential{ConsumerKey: "ck"}, "")

	var exchErr *TokenExchangeError
	assert.True(t, errors.As(err, &exchErr))
}

func TestExchange_OAuth1ParamLocations(t *testing.T) {
	var gotQuery, gotForm, gotAuthz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotQuery = r.URL.Query().Get("oauth_consumer_key")
		gotForm = r.PostForm.Get("oauth_consumer_key")
		gotAuthz = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("oauth_token=t&oauth_token_secret=s"))
	}))
	defer srv.Close()

	x := NewExchangeClient(nil, nil)
	consumer := ConsumerCredential{ConsumerKey: "ck", ConsumerSecret: "cs"}

	_, err := x.AcquireRequestToken(context.Background(), ServiceDefinition{
		RequestToken: Endpoint{URL: srv.URL, Method: http.MethodGet}, ParamLocation: ParamLocationQuery,
	}, consumer, "")
	require.NoError(t, err)
	assert.Equal(t, "ck", gotQuery)
	assert.Empty(t, gotAuthz)

	_, err = x.AcquireRequestToken(context.Background(), ServiceDefinition{
		RequestToken: Endpoint{URL: srv.URL}, ParamLocation: ParamLocationPostBody,
	}, consumer, "")
	require.NoError(t, err)
	assert.Equal(t, "ck", gotForm)
	assert.Empty(t, gotAuthz)

	_, err = x.AcquireRequestToken(context.Background(), ServiceDefinition{
		RequestToken: Endpoint{URL: srv.URL, Method: http.MethodGet}, ParamLocation: ParamLocationPostBody,
	}, consumer, "")
	assert.Error(t, err)
}
