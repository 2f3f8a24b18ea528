package config

import "time"

const (
	// DefaultPathPrefix is where the gadget endpoints are mounted.
	DefaultPathPrefix = "/gadgets"

	// DefaultOAuthCallbackPath is the default path for OAuth callbacks, relative to the path prefix.
	DefaultOAuthCallbackPath = "/oauthcallback"

	// DefaultClientStateSecret is only suitable for local development.
	DefaultClientStateSecret = "change-me-gadgethost"
)

// GetDefaultConfig returns the default configuration for gadgethost.
func GetDefaultConfig() GadgetHostConfig {
	return GadgetHostConfig{
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			PublicURL:         "http://localhost:8080",
			PathPrefix:        DefaultPathPrefix,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		OAuth: OAuthConfig{
			CallbackPath:    DefaultOAuthCallbackPath,
			CacheTTL:        24 * time.Hour,
			StateTTL:        10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			ExchangeTimeout: 30 * time.Second,
			BindBrowser:     true,
		},
		Consumers: ConsumersConfig{
			Backend: ConsumerBackendFile,
			Path:    "consumers.yaml",
		},
		Gadgets: GadgetsConfig{
			Directory: "gadgets",
			BaseURL:   "http://localhost:8080/gadgets/files",
			FetchTTL:  time.Hour,
		},
		ClientState: ClientStateConfig{
			Secret: DefaultClientStateSecret,
			Format: ClientStateFormatAES,
			Issuer: "gadgethost",
			MaxAge: time.Hour,
		},
		Proxy: ProxyConfig{
			Timeout:       20 * time.Second,
			MaxBodyBytes:  2 << 20,
			ConcatMaxURLs: 32,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "gadgethost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
