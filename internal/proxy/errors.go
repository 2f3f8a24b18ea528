package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/oauth"
)

// OAuth error codes reported to the gadget runtime. Provider responses are
// never passed through.
const (
	codeBadConfiguration = "BAD_OAUTH_CONFIGURATION"
	codeInvalidState     = "INVALID_OAUTH_STATE"
	codeTokenExchange    = "OAUTH_TOKEN_EXCHANGE_FAILED"
	codeNetwork          = "OAUTH_NETWORK_ERROR"
	codeInvalidToken     = "INVALID_SECURITY_TOKEN"
	codeTokenRejected    = "TOKEN_REJECTED"
	codeUnknown          = "UNKNOWN_PROBLEM"
)

var errorTexts = map[string]string{
	codeBadConfiguration: "The gadget's OAuth service is not configured in this container.",
	codeInvalidState:     "The authorization request is no longer valid. Start again.",
	codeTokenExchange:    "The service provider refused the token request.",
	codeNetwork:          "The service provider could not be reached.",
	codeInvalidToken:     "The security token is missing or invalid.",
	codeTokenRejected:    "The service provider rejected the access token. Approve access again.",
	codeUnknown:          "An unexpected error occurred.",
}

func errorCode(err error) string {
	if errors.Is(err, clientstate.ErrInvalidClientState) {
		return codeInvalidToken
	}
	switch oauth.ErrorCategory(err) {
	case "configuration":
		return codeBadConfiguration
	case "invalid_state":
		return codeInvalidState
	case "token_exchange":
		return codeTokenExchange
	case "network":
		return codeNetwork
	default:
		return codeUnknown
	}
}

func errorStatus(code string) int {
	switch code {
	case codeBadConfiguration, codeInvalidState:
		return http.StatusBadRequest
	case codeInvalidToken:
		return http.StatusUnauthorized
	case codeTokenExchange, codeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSONError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(errorStatus(code))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, ErrorDescription: errorTexts[code]})
}
