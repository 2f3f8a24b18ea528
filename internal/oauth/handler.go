package oauth

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"

	"gadgethost/pkg/logging"
)

// CallbackProcessor completes a flow from a provider redirect.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, r *http.Request) (*SecurityToken, error)
}

// CallbackHandler serves the browser popup the provider redirects back to.
// On success the page hands its URL to the opener's gadget runtime and
// closes itself. Failures render a generic page; details only reach the log.
type CallbackHandler struct {
	processor CallbackProcessor
	binding   *BrowserBinding
}

// NewCallbackHandler creates the callback endpoint handler.
func NewCallbackHandler(p CallbackProcessor) *CallbackHandler {
	return &CallbackHandler{processor: p}
}

type callbackPage struct {
	Nonce    string
	Service  string
	Protocol string
	Message  string
}

var (
	successTemplate = template.Must(template.New("success").Funcs(sprig.HtmlFuncMap()).Parse(successPageHTML))
	errorTemplate   = template.Must(template.New("error").Funcs(sprig.HtmlFuncMap()).Parse(errorPageHTML))
)

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, err := h.processor.HandleCallback(r.Context(), r)
	// The pending state is consumed either way.
	h.binding.Clear(w, callbackState(r))
	if err != nil {
		logging.Warn("OAuth", "Callback rejected: category=%s: %v", ErrorCategory(err), err)
		logging.Audit(logging.AuditEvent{
			Action:  "callback_rejected",
			Outcome: "failure",
			Details: ErrorCategory(err),
		})
		h.render(w, http.StatusBadRequest, errorTemplate, callbackPage{
			Message: "Authorization could not be completed. Please close this window and try again.",
		})
		return
	}

	logging.Info("OAuth", "Callback completed for owner=%s app=%s service=%s",
		logging.TruncateID(token.OwnerID), token.AppURL, token.ServiceName)
	h.render(w, http.StatusOK, successTemplate, callbackPage{
		Service:  token.ServiceName,
		Protocol: token.Protocol.String(),
	})
}

func (h *CallbackHandler) render(w http.ResponseWriter, status int, tmpl *template.Template, page callbackPage) {
	page.Nonce = strings.ReplaceAll(uuid.NewString(), "-", "")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		logging.Error("OAuth", err, "Failed to render callback page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	setSecurityHeaders(w, page.Nonce)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// setSecurityHeaders allows only the page's own nonce-tagged script.
func setSecurityHeaders(w http.ResponseWriter, nonce string) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; style-src 'unsafe-inline'; script-src 'nonce-"+nonce+"'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

const successPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Authorization complete</title>
<style>body{font-family:sans-serif;text-align:center;padding:3rem;color:#333}</style>
</head>
<body>
<p>Access to {{ .Service | default "the service" }} ({{ .Protocol | upper }}) was granted. This window will close.</p>
<script nonce="{{ .Nonce }}">
(function () {
  var o = window.opener;
  if (o && o.gadgets && o.gadgets.io) {
    o.gadgets.io.oauthReceivedCallbackUrl_ = document.location.href;
  }
  window.close();
})();
</script>
</body>
</html>`

const errorPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Authorization failed</title>
<style>body{font-family:sans-serif;text-align:center;padding:3rem;color:#a33}</style>
</head>
<body>
<p>{{ .Message }}</p>
</body>
</html>`
