package proxy

import (
	"encoding/json"
	"net/http"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/oauth"
	"gadgethost/pkg/logging"
)

// AuthorizeHandler starts authorization explicitly. It answers
// POST st=...&protocol=oauth|oauth2&oauthServiceName=... with an
// AuthorizationResponse.
type AuthorizeHandler struct {
	auth  Authorizer
	codec clientstate.Codec
}

// NewAuthorizeHandler creates the handler.
func NewAuthorizeHandler(auth Authorizer, codec clientstate.Codec) *AuthorizeHandler {
	return &AuthorizeHandler{auth: auth, codec: codec}
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	state, err := clientstate.FromRequest(h.codec, r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	protocol := oauth.ParseProtocol(r.Form.Get("protocol"))
	if protocol == oauth.ProtocolNone {
		http.Error(w, "protocol must be oauth or oauth2", http.StatusBadRequest)
		return
	}

	resp, err := h.auth.Authorize(r.Context(), r, state.ToToken(protocol, serviceName(r.Form)))
	if err != nil {
		logging.Error("Proxy", err, "Authorization for %s failed (category=%s)", state.AppURL(), oauth.ErrorCategory(err))
		writeJSONError(w, err)
		return
	}

	h.auth.BindBrowser(w, resp)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}
