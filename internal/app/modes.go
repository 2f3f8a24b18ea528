package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"gadgethost/pkg/logging"
)

// runServeMode serves the gadget endpoints until interrupted.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
//
// Services are closed after the HTTP server has drained, so in-flight
// requests still see the token cache and consumer store.
func runServeMode(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := services.Config
	logging.Info("CLI", "Serving gadgets on %s%s (callback %s)", cfg.ListenAddress(), cfg.Server.PathPrefix, cfg.CallbackURL())

	serveErr := services.Server.ListenAndServe(ctx)
	if serveErr != nil {
		logging.Error("CLI", serveErr, "HTTP server stopped")
	}

	logging.Info("CLI", "--- Shutting down services ---")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// The serve context is done by now.
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return errors.Join(serveErr, services.Close(closeCtx))
}
