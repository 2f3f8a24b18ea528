package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestCallbackHandler_Rejections(t *testing.T) {
	env := newTestEnv(t)
	handler := env.manager.CallbackHandler()

	tests := []struct {
		name       string
		method     string
		query      string
		wantStatus int
	}{
		{name: "no parameters", method: "GET", query: "", wantStatus: http.StatusBadRequest},
		{name: "unknown request token", method: "GET", query: "oauth_token=nope&oauth_verifier=v1", wantStatus: http.StatusBadRequest},
		{name: "unknown state", method: "GET", query: "state=nope&code=c1", wantStatus: http.StatusBadRequest},
		{name: "provider error description", method: "GET", query: "state=nope&error=access_denied&error_description=secret+provider+detail", wantStatus: http.StatusBadRequest},
		{name: "wrong method", method: "DELETE", query: "", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/gadgets/oauthcallback?"+tc.query, nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			body := rr.Body.String()
			if strings.Contains(body, "secret provider detail") || strings.Contains(body, "nope") {
				t.Errorf("Error page leaked request details: %q", body)
			}
			if tc.wantStatus == http.StatusBadRequest && !strings.Contains(body, "Authorization could not be completed") {
				t.Errorf("Expected generic error page, got %q", body)
			}
		})
	}
}

func TestCallbackHandler_SuccessNotifiesOpener(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.manager.Authorize(ctx, httptest.NewRequest("GET", "/", nil),
		&SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: ProtocolOAuth2})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	req := httptest.NewRequest("GET", "/gadgets/oauthcallback?code=c1&state="+url.QueryEscape(resp.OAuthState), nil)
	rr := httptest.NewRecorder()
	env.manager.CallbackHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, "oauthReceivedCallbackUrl_") {
		t.Error("Expected page to notify the opener's gadget runtime")
	}
	if !strings.Contains(body, "window.close()") {
		t.Error("Expected page to close the popup")
	}
	if !strings.Contains(body, "OAUTH2") {
		t.Errorf("Expected upper-cased protocol in page, got %q", body)
	}
	if strings.Contains(body, "at2") {
		t.Error("Success page must not contain the access token")
	}

	csp := rr.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "script-src 'nonce-") {
		t.Errorf("Expected nonce-based script-src, got %q", csp)
	}
	nonce := strings.TrimSuffix(strings.SplitN(csp, "'nonce-", 2)[1], "'")
	if !strings.Contains(body, `nonce="`+nonce+`"`) {
		t.Error("Expected script tag to carry the CSP nonce")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected X-Frame-Options DENY")
	}
}

func TestCallbackHandler_PostedForm(t *testing.T) {
	tests := []struct {
		name     string
		protocol ProtocolType
		form     func(state string) url.Values
		wantKey  string
		wantTok  string
	}{
		{
			name:     "oauth1 verifier in body",
			protocol: ProtocolOAuth1,
			form:     func(state string) url.Values { return url.Values{"oauth_token": {state}, "oauth_verifier": {"v1"}} },
			wantKey:  CacheKey("u1", testAppURL, "twitter"),
			wantTok:  "at1",
		},
		{
			name:     "oauth2 code in body",
			protocol: ProtocolOAuth2,
			form:     func(state string) url.Values { return url.Values{"state": {state}, "code": {"c1"}} },
			wantKey:  CacheKey("u1", testAppURL, "google"),
			wantTok:  "at2",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp, err := env.manager.Authorize(context.Background(), httptest.NewRequest("GET", "/", nil),
				&SecurityToken{AppURL: testAppURL, OwnerID: "u1", Protocol: tc.protocol})
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}

			req := httptest.NewRequest("POST", "/gadgets/oauthcallback", strings.NewReader(tc.form(resp.OAuthState).Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()
			env.manager.CallbackHandler().ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			granted := env.cache.Get(tc.wantKey)
			if granted == nil || !granted.IsAccessToken {
				t.Fatalf("Expected access token cached under %s, got %v", tc.wantKey, granted)
			}
			if granted.Token != tc.wantTok {
				t.Errorf("Expected token %q, got %q", tc.wantTok, granted.Token)
			}
		})
	}
}
