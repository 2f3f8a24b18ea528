package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const bindingCookiePrefix = "gh_oauth_"

// BrowserBinding ties a pending authorization to the browser that started
// it. A random value is stored with the pending token and handed to the
// browser in a cookie scoped to the callback path. The callback is accepted
// only when the cookie carries the same value.
type BrowserBinding struct {
	path   string
	secure bool
	maxAge time.Duration
}

// NewBrowserBinding derives the cookie scope from the callback URL.
func NewBrowserBinding(callbackURL string, maxAge time.Duration) *BrowserBinding {
	b := &BrowserBinding{path: "/", maxAge: maxAge}
	if u, err := url.Parse(callbackURL); err == nil {
		if u.Path != "" {
			b.path = u.Path
		}
		b.secure = u.Scheme == "https"
	}
	return b
}

// BindingCookieName returns the cookie that carries the binding for state.
// Concurrent flows in one browser each get their own cookie.
func BindingCookieName(state string) string {
	sum := sha256.Sum256([]byte(state))
	return bindingCookiePrefix + hex.EncodeToString(sum[:8])
}

func newBindingValue() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Set writes the binding cookie for resp. It is a no-op when resp carries
// no binding.
func (b *BrowserBinding) Set(w http.ResponseWriter, resp *AuthorizationResponse) {
	if b == nil || resp == nil || resp.Binding == "" {
		return
	}
	http.SetCookie(w, b.cookie(resp.OAuthState, resp.Binding, int(b.maxAge.Seconds())))
}

// Clear expires the binding cookie for state.
func (b *BrowserBinding) Clear(w http.ResponseWriter, state string) {
	if b == nil || state == "" {
		return
	}
	http.SetCookie(w, b.cookie(state, "", -1))
}

// Verify checks the callback request against the pending token.
func (b *BrowserBinding) Verify(r *http.Request, state string, pending *SecurityToken) error {
	if b == nil {
		return nil
	}
	if pending.Binding == "" {
		return &InvalidStateError{Reason: "pending authorization is not bound to a browser"}
	}
	c, err := r.Cookie(BindingCookieName(state))
	if err != nil || subtle.ConstantTimeCompare([]byte(c.Value), []byte(pending.Binding)) != 1 {
		return &InvalidStateError{Reason: "callback did not come from the browser that started authorization"}
	}
	return nil
}

func (b *BrowserBinding) cookie(state, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     BindingCookieName(state),
		Value:    value,
		Path:     b.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	}
	// Providers that answer with a cross-site form POST need SameSite=None,
	// which browsers accept only on secure cookies.
	if b.secure {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// callbackState returns the flow key a callback names.
func callbackState(r *http.Request) string {
	if v := r.FormValue("oauth_token"); v != "" {
		return v
	}
	return r.FormValue("state")
}
