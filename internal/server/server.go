package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gadgethost/internal/config"
	"gadgethost/pkg/logging"
)

// Handlers are the endpoint implementations mounted by the server. A nil
// handler leaves its route unregistered.
type Handlers struct {
	MakeRequest http.Handler
	Concat      http.Handler
	Authorize   http.Handler
	Callback    http.Handler
}

// Server owns the HTTP listener for the gadget endpoints.
type Server struct {
	cfg        config.ServerConfig
	handler    http.Handler
	httpServer *http.Server
}

// New builds the route table from cfg. The callback is mounted at
// cfg.OAuth.CallbackPath beneath the path prefix.
func New(cfg config.GadgetHostConfig, h Handlers) *Server {
	s := &Server{cfg: cfg.Server}
	mux := s.createMux(cfg, h)
	s.handler = otelhttp.NewHandler(accessLog(mux), "gadgethost",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) createMux(cfg config.GadgetHostConfig, h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer probes
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	prefix := strings.TrimSuffix(cfg.Server.PathPrefix, "/")
	routes := []struct {
		path    string
		handler http.Handler
	}{
		{prefix + "/makeRequest", h.MakeRequest},
		{prefix + "/concat", h.Concat},
		{prefix + "/oauth/authorize", h.Authorize},
		{prefix + cfg.OAuth.CallbackPath, h.Callback},
	}
	for _, rt := range routes {
		if rt.handler == nil {
			continue
		}
		mux.Handle(rt.path, rt.handler)
		logging.Debug("Server", "Mounted %s", rt.path)
	}
	return mux
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	logging.Info("Server", "Listening on %s (prefix=%s)", ln.Addr(), s.cfg.PathPrefix)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logging.Info("Server", "Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// accessLog logs one line per request. Query strings are left out.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		if m.Code >= http.StatusInternalServerError {
			logging.Warn("HTTP", "%s %s -> %d (%s, %d bytes)", r.Method, r.URL.Path, m.Code, m.Duration, m.Written)
			return
		}
		logging.Debug("HTTP", "%s %s -> %d (%s, %d bytes)", r.Method, r.URL.Path, m.Code, m.Duration, m.Written)
	})
}
