package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState marks attempts to sign with a non-access token and
	// callbacks that reference an unknown or expired cache key.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrServiceNotFound means the gadget declares no matching OAuth service.
	ErrServiceNotFound = errors.New("oauth service not declared")

	// ErrAmbiguousService means no service name was given and the gadget
	// declares more than one service for the protocol.
	ErrAmbiguousService = errors.New("oauth service name required")

	// ErrConsumerNotFound means no consumer key/secret is registered.
	ErrConsumerNotFound = errors.New("consumer not registered")
)

// ConfigurationError reports a missing or ambiguous service definition or
// consumer registration.
type ConfigurationError struct {
	AppURL      string
	ServiceName string
	Err         error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("oauth configuration for app=%s service=%q: %v", e.AppURL, e.ServiceName, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TokenExchangeError reports a non-2xx or unparsable provider response.
// Provider bodies are never part of the message.
type TokenExchangeError struct {
	Endpoint   string
	StatusCode int
	OAuthError string // error code reported by the provider, if any
	Err        error
}

func (e *TokenExchangeError) Error() string {
	msg := "token exchange failed"
	if e.Endpoint != "" {
		msg += " at " + e.Endpoint
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.OAuthError != "" {
		msg += ": " + e.OAuthError
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// InvalidStateError is a user visible failure caused by using a token in the
// wrong state. It matches ErrInvalidState with errors.Is.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid oauth state: " + e.Reason
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// NetworkError wraps a transport level failure (DNS, TLS, timeout). It may be transient.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrorCategory names the taxonomy bucket of err for logging.
func ErrorCategory(err error) string {
	var (
		cfgErr   *ConfigurationError
		exchErr  *TokenExchangeError
		stateErr *InvalidStateError
		netErr   *NetworkError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &exchErr):
		return "token_exchange"
	case errors.As(err, &stateErr):
		return "invalid_state"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "internal"
	}
}
