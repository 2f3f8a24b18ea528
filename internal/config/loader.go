package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"gadgethost/pkg/logging"
)

const (
	// EnvPrefix is prepended to every environment override, e.g. GADGETHOST_SERVER_PORT.
	EnvPrefix = "GADGETHOST_"

	configFileName = "config.yaml"
)

// LoadConfig loads configuration from the given file or directory.
// A directory is expected to contain config.yaml. A missing file yields the
// defaults. Environment variables are applied after the file and the result is
// validated.
func LoadConfig(path string) (GadgetHostConfig, error) {
	config := GetDefaultConfig()

	if path != "" {
		configFilePath := path
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			configFilePath = filepath.Join(path, configFileName)
		}

		data, err := os.ReadFile(configFilePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Info("Config", "No config file found at %s, using defaults", configFilePath)
		case err != nil:
			return GadgetHostConfig{}, ConfigurationError{
				FilePath:  configFilePath,
				ErrorType: "io",
				Message:   "cannot read config file",
				Err:       err,
			}
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return GadgetHostConfig{}, ConfigurationError{
					FilePath:  configFilePath,
					ErrorType: "parse",
					Message:   "malformed YAML",
					Hint:      "check indentation and key names",
					Err:       err,
				}
			}
			logging.Info("Config", "Loaded configuration from %s", configFilePath)
		}
	}

	if err := ApplyEnv(&config); err != nil {
		return GadgetHostConfig{}, err
	}

	if err := Validate(config); err != nil {
		return GadgetHostConfig{}, err
	}
	return config, nil
}

// ApplyEnv overrides config fields from GADGETHOST_* environment variables.
func ApplyEnv(config *GadgetHostConfig) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
