package config

import "time"

// GadgetHostConfig is the top-level configuration structure for gadgethost.
type GadgetHostConfig struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	OAuth       OAuthConfig       `yaml:"oauth" envPrefix:"OAUTH_"`
	Consumers   ConsumersConfig   `yaml:"consumers" envPrefix:"CONSUMERS_"`
	Gadgets     GadgetsConfig     `yaml:"gadgets" envPrefix:"GADGETS_"`
	ClientState ClientStateConfig `yaml:"clientState" envPrefix:"CLIENT_STATE_"`
	Proxy       ProxyConfig       `yaml:"proxy" envPrefix:"PROXY_"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Logging     LoggingConfig     `yaml:"logging" envPrefix:"LOG_"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Host              string        `yaml:"host,omitempty" env:"HOST"`
	Port              int           `yaml:"port,omitempty" env:"PORT"`
	PublicURL         string        `yaml:"publicUrl,omitempty" env:"PUBLIC_URL"` // Externally reachable base URL, used to build callback URLs
	PathPrefix        string        `yaml:"pathPrefix,omitempty" env:"PATH_PREFIX"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout,omitempty" env:"READ_HEADER_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"writeTimeout,omitempty" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idleTimeout,omitempty" env:"IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout,omitempty" env:"SHUTDOWN_TIMEOUT"`
}

// OAuthConfig controls the token acquisition flows and the token cache.
type OAuthConfig struct {
	CallbackPath    string        `yaml:"callbackPath,omitempty" env:"CALLBACK_PATH"`
	CacheTTL        time.Duration `yaml:"cacheTTL,omitempty" env:"CACHE_TTL"` // Zero disables time based eviction
	StateTTL        time.Duration `yaml:"stateTTL,omitempty" env:"STATE_TTL"` // Lifetime of pending request tokens and OAuth2 state
	CleanupInterval time.Duration `yaml:"cleanupInterval,omitempty" env:"CLEANUP_INTERVAL"`
	ExchangeTimeout time.Duration `yaml:"exchangeTimeout,omitempty" env:"EXCHANGE_TIMEOUT"`
	BindBrowser     bool          `yaml:"bindBrowser" env:"BIND_BROWSER"` // Require callbacks to carry the cookie set when authorization started
}

// Consumer store backends.
const (
	ConsumerBackendFile   = "file"
	ConsumerBackendSQLite = "sqlite"
)

// ConsumersConfig selects where consumer registrations (keys and secrets) live.
type ConsumersConfig struct {
	Backend string `yaml:"backend,omitempty" env:"BACKEND"`
	Path    string `yaml:"path,omitempty" env:"PATH"`
	Watch   bool   `yaml:"watch,omitempty" env:"WATCH"` // Reload the file backend on change
}

// GadgetsConfig points at the gadget specs whose OAuth sections declare services.
type GadgetsConfig struct {
	Directory   string        `yaml:"directory,omitempty" env:"DIRECTORY"`
	BaseURL     string        `yaml:"baseUrl,omitempty" env:"BASE_URL"`         // App URL prefix for specs loaded from Directory
	FetchRemote bool          `yaml:"fetchRemote,omitempty" env:"FETCH_REMOTE"` // Fetch specs not found locally from their app URL
	FetchTTL    time.Duration `yaml:"fetchTTL,omitempty" env:"FETCH_TTL"`
}

// Security token formats accepted in the st parameter.
const (
	ClientStateFormatAES = "aes"
	ClientStateFormatJWT = "jwt"
)

// ClientStateConfig holds the shared secret used to protect client state.
type ClientStateConfig struct {
	Secret    string        `yaml:"secret,omitempty" env:"SECRET"`
	SecretRef string        `yaml:"secretRef,omitempty" env:"SECRET_REF"` // Secret Manager version name, overrides Secret
	Format    string        `yaml:"format,omitempty" env:"FORMAT"`
	Issuer    string        `yaml:"issuer,omitempty" env:"ISSUER"`
	MaxAge    time.Duration `yaml:"maxAge,omitempty" env:"MAX_AGE"` // Lifetime of jwt security tokens
}

// ProxyConfig bounds the makeRequest and concat proxies.
type ProxyConfig struct {
	Timeout       time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	MaxBodyBytes  int64         `yaml:"maxBodyBytes,omitempty" env:"MAX_BODY_BYTES"`
	ConcatMaxURLs int           `yaml:"concatMaxUrls,omitempty" env:"CONCAT_MAX_URLS"`
}

// TelemetryConfig enables OpenTelemetry tracing when an endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty" env:"ENDPOINT"`
	ServiceName string `yaml:"serviceName,omitempty" env:"SERVICE_NAME"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" env:"LEVEL"`
	Format string `yaml:"format,omitempty" env:"FORMAT"`
}
