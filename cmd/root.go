package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gadgethost/internal/cli"
	"gadgethost/internal/config"
	"gadgethost/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeUsage indicates invalid flags or arguments.
	ExitCodeUsage = 2
	// ExitCodeConfig indicates the configuration could not be loaded or is invalid.
	ExitCodeConfig = 3
)

var (
	// rootConfigPath is a config.yaml file or a directory containing one.
	rootConfigPath string
	// rootDebug enables debug logging for every command.
	rootDebug bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gadgethost",
	Short: "OpenSocial gadget container backend",
	Long: `gadgethost serves the container side of OpenSocial gadgets: the
makeRequest and concat proxies, OAuth 1.0a and OAuth 2.0 token acquisition
on behalf of gadgets, and the provider callback.

Configuration is read from config.yaml (see --config-path) and
GADGETHOST_* environment variables.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gadgethost version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		var cfgErr config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, cfgErr.DetailedError())
		}
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var usage *cli.UsageError
	if errors.As(err, &usage) {
		return ExitCodeUsage
	}

	var cfgErr config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfig
	}
	var validation config.ValidationErrors
	if errors.As(err, &validation) {
		return ExitCodeConfig
	}

	return ExitCodeError
}

// loadConfig loads configuration for commands other than serve, which
// leaves logging to the application bootstrap.
func loadConfig() (config.GadgetHostConfig, error) {
	level := logging.LevelWarn
	if rootDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)
	return config.LoadConfig(rootConfigPath)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "config.yaml file or directory containing one (defaults only when empty)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
