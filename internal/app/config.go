package app

import (
	"io"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level
	Debug bool

	// Custom configuration path (optional). A directory must contain
	// config.yaml; a missing file yields the defaults.
	ConfigPath string

	// LogOutput receives the process log. Defaults to stderr.
	LogOutput io.Writer

	// GadgetHostConfig is loaded from ConfigPath when nil
	GadgetHostConfig *config.GadgetHostConfig

	// SecretAccessor reads client state secrets named by
	// ClientState.SecretRef. Defaults to Secret Manager.
	SecretAccessor clientstate.SecretAccessor
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
