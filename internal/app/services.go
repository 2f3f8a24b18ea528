package app

import (
	"context"
	"errors"
	"fmt"

	"gadgethost/internal/clientstate"
	"gadgethost/internal/config"
	"gadgethost/internal/consumer"
	"gadgethost/internal/gadget"
	"gadgethost/internal/oauth"
	"gadgethost/internal/proxy"
	"gadgethost/internal/server"
	"gadgethost/internal/telemetry"
	"gadgethost/pkg/logging"
)

// Services holds the initialized components of a running container.
//
// Initialization order follows the dependencies:
//  1. Telemetry, so later components record spans
//  2. Client state codec (secret resolution may call Secret Manager)
//  3. Consumer store and gadget registry
//  4. Token cache and OAuth manager
//  5. Proxy handlers and the HTTP server
type Services struct {
	Config    config.GadgetHostConfig
	Codec     clientstate.Codec
	Consumers consumer.Store
	Registry  *gadget.Registry
	Cache     *oauth.TokenCache
	Manager   *oauth.Manager
	Server    *server.Server

	shutdownTelemetry func(context.Context) error
}

// InitializeServices creates every component for cfg. On failure anything
// already opened is closed again.
func InitializeServices(ctx context.Context, cfg config.GadgetHostConfig, access clientstate.SecretAccessor) (_ *Services, err error) {
	s := &Services{Config: cfg}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	s.shutdownTelemetry, err = telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	secret, err := clientstate.ResolveSecret(ctx, cfg.ClientState, access)
	if err != nil {
		return nil, err
	}
	if secret == config.DefaultClientStateSecret {
		logging.Warn("Services", "Client state secret is the development default; set GADGETHOST_CLIENT_STATE_SECRET")
	}
	s.Codec, err = clientstate.NewCodec(cfg.ClientState, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create client state codec: %w", err)
	}

	consumers, err := consumer.Open(cfg.Consumers)
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer store: %w", err)
	}
	s.Consumers = consumers

	proxyClient := proxy.NewClient(cfg.Proxy.Timeout)

	var remote gadget.Fetcher
	if cfg.Gadgets.FetchRemote {
		remote = gadget.NewRemoteFetcher(proxyClient, cfg.Gadgets.FetchTTL)
	}
	s.Registry = gadget.NewRegistry(remote)
	n, err := s.Registry.LoadDirectory(cfg.Gadgets.Directory, cfg.Gadgets.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load gadget specs: %w", err)
	}
	logging.Info("Services", "Loaded %d gadget specs from %s (remote fetch=%t)", n, cfg.Gadgets.Directory, cfg.Gadgets.FetchRemote)

	s.Cache = oauth.NewTokenCache(oauth.TokenCacheOptions{
		TTL:             cfg.OAuth.CacheTTL,
		StateTTL:        cfg.OAuth.StateTTL,
		CleanupInterval: cfg.OAuth.CleanupInterval,
	})
	engine := oauth.NewSignatureEngine()
	s.Manager, err = oauth.NewManager(oauth.ManagerConfig{
		Cache:       s.Cache,
		Services:    s.Registry,
		Consumers:   s.Consumers,
		HTTPClient:  proxy.NewClient(cfg.OAuth.ExchangeTimeout),
		Signature:   engine,
		CallbackURL: cfg.CallbackURL(),
		BindBrowser: cfg.OAuth.BindBrowser,
		StateTTL:    cfg.OAuth.StateTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth manager: %w", err)
	}

	opts := proxy.Options{
		Client:        proxyClient,
		Timeout:       cfg.Proxy.Timeout,
		MaxBodyBytes:  cfg.Proxy.MaxBodyBytes,
		ConcatMaxURLs: cfg.Proxy.ConcatMaxURLs,
	}
	s.Server = server.New(cfg, server.Handlers{
		MakeRequest: proxy.NewMakeRequestHandler(s.Manager, s.Codec, proxy.NewSignedFetcher(s.Consumers, engine), opts),
		Concat:      proxy.NewConcatHandler(opts),
		Authorize:   proxy.NewAuthorizeHandler(s.Manager, s.Codec),
		Callback:    s.Manager.CallbackHandler(),
	})
	return s, nil
}

// Close releases the cache, the consumer store and telemetry.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Cache != nil {
		s.Cache.Stop()
	}
	if s.Consumers != nil {
		if err := s.Consumers.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer store: %w", err))
		}
	}
	if s.shutdownTelemetry != nil {
		if err := s.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
