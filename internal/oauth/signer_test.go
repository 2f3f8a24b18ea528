package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSigner_Select(t *testing.T) {
	env := newTestEnv(t)
	s := env.manager.Signer()

	req := httptest.NewRequest(http.MethodGet, "/cb?oauth_token=x&code=y", nil)
	// OAuth1 is asked first
	assert.Equal(t, ProtocolOAuth1, s.Select(req, nil).Protocol())
	assert.Equal(t, ProtocolOAuth2, s.Select(req, &SecurityToken{Protocol: ProtocolOAuth2}).Protocol())
	assert.Nil(t, s.Select(httptest.NewRequest(http.MethodGet, "/", nil), nil))
}

func TestRequestSigner_UnsignedPassThrough(t *testing.T) {
	env := newTestEnv(t)
	in := httptest.NewRequest(http.MethodGet, "/gadgets/makeRequest", nil)
	out := httptest.NewRequest(http.MethodGet, "http://api.test/r", nil)

	res, err := env.manager.Signer().Sign(context.Background(), out, in, &SecurityToken{AppURL: testAppURL})
	require.NoError(t, err)
	assert.False(t, res.Signed)
	assert.False(t, res.ApprovalRequired)
	assert.Empty(t, out.Header.Get("Authorization"))
}

func TestRequestSigner_ApprovalThenSigned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signer := env.manager.Signer()
	in := httptest.NewRequest(http.MethodGet, "/gadgets/makeRequest", nil)
	token := &SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: ProtocolOAuth1}

	out := httptest.NewRequest(http.MethodGet, "http://api.test/r", nil)
	res, err := signer.Sign(ctx, out, in, token)
	require.NoError(t, err)
	require.True(t, res.ApprovalRequired)
	assert.False(t, res.Signed)
	require.NotNil(t, res.Authorization)
	assert.NotEmpty(t, res.Authorization.AuthURL)
	assert.Empty(t, out.Header.Get("Authorization"))

	_, err = env.manager.HandleCallback(ctx, httptest.NewRequest(http.MethodGet,
		"/cb?oauth_token="+res.Authorization.OAuthState+"&oauth_verifier=v1", nil))
	require.NoError(t, err)

	out = httptest.NewRequest(http.MethodGet, "http://api.test/r", nil)
	res, err = signer.Sign(ctx, out, in, token)
	require.NoError(t, err)
	assert.True(t, res.Signed)
	assert.Equal(t, ProtocolOAuth1, res.Protocol)
	assert.Equal(t, "twitter", res.Service)
	assert.True(t, strings.HasPrefix(out.Header.Get("Authorization"), "OAuth "))
	assert.Contains(t, out.Header.Get("Authorization"), `oauth_token="at1"`)
}

func TestRequestSigner_OAuth2Cached(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Add(CacheKey("u1", testAppURL, "google"), grantedOAuth2())

	in := httptest.NewRequest(http.MethodGet, "/gadgets/makeRequest", nil)
	out := httptest.NewRequest(http.MethodGet, "http://api.test/r", nil)
	res, err := env.manager.Signer().Sign(context.Background(), out, in,
		&SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: ProtocolOAuth2})
	require.NoError(t, err)
	assert.True(t, res.Signed)
	assert.Equal(t, "Bearer at2", out.Header.Get("Authorization"))
}

func TestRequestSigner_NilTokenWithMarkers(t *testing.T) {
	env := newTestEnv(t)
	in := httptest.NewRequest(http.MethodGet, "/x?oauth_token=abc", nil)
	out := httptest.NewRequest(http.MethodGet, "http://api.test/r", nil)

	_, err := env.manager.Signer().Sign(context.Background(), out, in, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRequestSigner_RejectedRefreshRestartsApproval(t *testing.T) {
	env := newTestEnv(t)
	dead := grantedOAuth2()
	dead.RefreshToken = "revoked"
	dead.ExpiresAt = time.Now().Add(-time.Minute)
	env.cache.Add(dead.CacheKey(), dead)

	ctx := context.Background()
	in := httptest.NewRequest(http.MethodGet, "/gadgets/makeRequest", nil)
	token := &SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: ProtocolOAuth2}

	_, err := env.manager.Sign(ctx, httptest.NewRequest(http.MethodGet, "http://api.test/r", nil), in, token)
	var exchErr *TokenExchangeError
	require.True(t, errors.As(err, &exchErr), "expected the refresh failure, got %v", err)
	assert.Nil(t, env.manager.AccessToken("u1", testAppURL, "google"))

	out := httptest.NewRequest(http.MethodGet, "http://api.test/r", nil)
	res, err := env.manager.Sign(ctx, out, in, token)
	require.NoError(t, err)
	assert.True(t, res.ApprovalRequired)
	require.NotNil(t, res.Authorization)
	assert.NotEmpty(t, res.Authorization.AuthURL)
	assert.Empty(t, out.Header.Get("Authorization"))
}
