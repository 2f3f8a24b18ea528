package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"gadgethost/internal/config"
	"gadgethost/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs the gadget container.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, build services
//  2. Execution phase: serve HTTP until the context is cancelled
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/gadgethost")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration, configures logging and initializes all
// services. Configuration comes from cfg.GadgetHostConfig when set and from
// cfg.ConfigPath otherwise.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		logOutput = cfg.LogOutput
	}
	bootLevel := logging.LevelInfo
	if cfg.Debug {
		bootLevel = logging.LevelDebug
	}
	logging.InitForCLI(bootLevel, logOutput)

	if cfg.GadgetHostConfig == nil {
		hostCfg, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %q", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.GadgetHostConfig = &hostCfg
	}
	hostCfg := *cfg.GadgetHostConfig

	level := logging.ParseLevel(hostCfg.Logging.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logOutput, hostCfg.Logging.Format)

	services, err := InitializeServices(ctx, hostCfg, cfg.SecretAccessor)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services returns the initialized components.
func (a *Application) Services() *Services { return a.services }

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down and releases every service.
func (a *Application) Run(ctx context.Context) error {
	return runServeMode(ctx, a.services)
}
