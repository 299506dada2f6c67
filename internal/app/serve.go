package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"wallet-activity/internal/proxy"
)

// Serve runs the explorer proxy until interrupted.
func (a *App) Serve(ctx context.Context, listenAddr string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := a.Config.Proxy
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr
	}
	if cfg.APIKey == "" {
		a.Logger.Warn().Msg("proxy.api_key not configured; history requests will fail with 500")
	}

	srv := proxy.New(proxy.Options{
		UpstreamURL:    cfg.UpstreamURL,
		APIKey:         cfg.APIKey,
		ChainID:        cfg.ChainID,
		Timeout:        cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}, a.Logger, a.Metrics)

	a.Logger.Info().Str("addr", listenAddr).Int64("chain_id", cfg.ChainID).Msg("starting explorer proxy")
	err := srv.ListenAndServe(ctx, listenAddr)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("proxy terminated with error")
		return err
	}

	a.Logger.Info().Msg("explorer proxy stopped")
	return nil
}
