package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks that value is one of the allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks a fully merged configuration.
func Validate(cfg GadgetHostConfig) error {
	var errs ValidationErrors

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535", cfg.Server.Port)
	}
	if u, err := url.Parse(cfg.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("server.publicUrl", "must be an absolute URL", cfg.Server.PublicURL)
	}
	if cfg.Server.PathPrefix != "" && !strings.HasPrefix(cfg.Server.PathPrefix, "/") {
		errs.Add("server.pathPrefix", "must start with '/'", cfg.Server.PathPrefix)
	}
	if !strings.HasPrefix(cfg.OAuth.CallbackPath, "/") {
		errs.Add("oauth.callbackPath", "must start with '/'", cfg.OAuth.CallbackPath)
	}
	if cfg.OAuth.CacheTTL < 0 {
		errs.Add("oauth.cacheTTL", "must not be negative", cfg.OAuth.CacheTTL)
	}
	if cfg.OAuth.StateTTL < 0 {
		errs.Add("oauth.stateTTL", "must not be negative", cfg.OAuth.StateTTL)
	}
	if err := ValidateOneOf("consumers.backend", cfg.Consumers.Backend,
		[]string{ConsumerBackendFile, ConsumerBackendSQLite}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if strings.TrimSpace(cfg.Consumers.Path) == "" {
		errs.Add("consumers.path", "is required")
	}
	if strings.TrimSpace(cfg.ClientState.Secret) == "" && strings.TrimSpace(cfg.ClientState.SecretRef) == "" {
		errs.Add("clientState.secret", "is required unless clientState.secretRef is set")
	}
	if err := ValidateOneOf("clientState.format", cfg.ClientState.Format,
		[]string{ClientStateFormatAES, ClientStateFormatJWT}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if cfg.ClientState.Format == ClientStateFormatJWT && cfg.ClientState.MaxAge <= 0 {
		errs.Add("clientState.maxAge", "must be positive for jwt security tokens", cfg.ClientState.MaxAge)
	}
	if cfg.Gadgets.FetchRemote && cfg.Gadgets.FetchTTL <= 0 {
		errs.Add("gadgets.fetchTTL", "must be positive when fetchRemote is enabled", cfg.Gadgets.FetchTTL)
	}
	if cfg.Proxy.MaxBodyBytes <= 0 {
		errs.Add("proxy.maxBodyBytes", "must be positive", cfg.Proxy.MaxBodyBytes)
	}
	if cfg.Proxy.ConcatMaxURLs <= 0 {
		errs.Add("proxy.concatMaxUrls", "must be positive", cfg.Proxy.ConcatMaxURLs)
	}
	if cfg.Logging.Format != "" {
		if err := ValidateOneOf("logging.format", cfg.Logging.Format, []string{"text", "json"}); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// CallbackURL returns the absolute OAuth callback URL advertised to providers.
func (c GadgetHostConfig) CallbackURL() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/") + c.Server.PathPrefix + c.OAuth.CallbackPath
}

// ListenAddress returns host:port for the HTTP listener.
func (c GadgetHostConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
