package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gadgethost/internal/oauth"
)

func postAuthorize(h http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/gadgets/oauth/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthorize(t *testing.T) {
	codec := testCodec(t)
	auth := &fakeAuth{authResp: &oauth.AuthorizationResponse{
		Version:    1,
		Protocol:   "oauth2",
		Service:    "google",
		AuthURL:    "https://g.test/auth?state=s1",
		OAuthState: "s1",
	}}
	h := NewAuthorizeHandler(auth, codec)

	rec := postAuthorize(h, url.Values{
		"st":               {wrapState(t, codec, "u1")},
		"protocol":         {"oauth2"},
		"oauthServiceName": {"google"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "https://g.test/auth?state=s1", got["oauthApprovalUrl"])
	assert.Equal(t, "s1", got["oauthState"])
	assert.Equal(t, []string{"s1"}, auth.bound)

	require.Len(t, auth.tokens, 1)
	assert.Equal(t, oauth.ProtocolOAuth2, auth.tokens[0].Protocol)
	assert.Equal(t, "google", auth.tokens[0].ServiceName)
	assert.Equal(t, "u1", auth.tokens[0].OwnerID)
}

func TestAuthorize_Errors(t *testing.T) {
	codec := testCodec(t)

	rec := postAuthorize(NewAuthorizeHandler(&fakeAuth{}, codec), url.Values{"protocol": {"oauth"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing st")

	rec = postAuthorize(NewAuthorizeHandler(&fakeAuth{}, codec), url.Values{"st": {wrapState(t, codec, "u1")}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing protocol")

	auth := &fakeAuth{err: &oauth.ConfigurationError{AppURL: testAppURL, Err: oauth.ErrConsumerNotFound}}
	rec = postAuthorize(NewAuthorizeHandler(auth, codec), url.Values{"st": {wrapState(t, codec, "u1")}, "protocol": {"oauth"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, codeBadConfiguration, body.Error)
	assert.NotContains(t, rec.Body.String(), testAppURL, "internal details stay in the logs")

	getRec := httptest.NewRecorder()
	NewAuthorizeHandler(&fakeAuth{}, codec).ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/gadgets/oauth/authorize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, getRec.Code)
}
