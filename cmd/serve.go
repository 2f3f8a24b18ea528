package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gadgethost/internal/app"
)

// serveCmd starts the gadget container endpoints.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the makeRequest, concat and OAuth endpoints",
	Long: `Starts the HTTP server for the gadget container.

Routes are mounted under server.pathPrefix (default /gadgets):
  makeRequest       proxied gadget fetches, optionally OAuth or signed
  concat            all-or-nothing script concatenation
  oauth/authorize   explicit authorization without a fetch
  oauthcallback     provider redirect target (oauth.callbackPath)

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := app.NewConfig(rootDebug, rootConfigPath)
	cfg.LogOutput = cmd.ErrOrStderr()
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
