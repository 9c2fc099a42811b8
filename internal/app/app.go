// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmon/procmon/internal/config"
	"github.com/openmon/procmon/internal/engine"
	"github.com/openmon/procmon/internal/httpserver"
	"github.com/openmon/procmon/internal/sampler"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	source := sampler.NewSystemSource(baseLogger)

	eng, err := engine.New(source, baseLogger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	if err := eng.Init(ctx); err != nil {
		return fmt.Errorf("engine baseline: %w", err)
	}
	appLogger.Info("engine initialised", "refresh_interval", cfg.RefreshInterval)

	refreshCtx, refreshCancel := context.WithCancel(ctx)
	defer refreshCancel()

	refreshErrCh := make(chan error, 1)
	go func() {
		refreshErrCh <- refreshLoop(refreshCtx, eng, cfg.RefreshInterval, appLogger)
	}()

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), eng)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	for {
		select {
		case err := <-errCh:
			refreshCancel()
			if err != nil {
				return err
			}
			if refreshErrCh != nil {
				if refreshErr := <-refreshErrCh; refreshErr != nil && !errors.Is(refreshErr, context.Canceled) {
					return refreshErr
				}
			}
			return nil
		case err := <-refreshErrCh:
			refreshErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}

			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			refreshCancel()
			if refreshErrCh != nil {
				if refreshErr := <-refreshErrCh; refreshErr != nil && !errors.Is(refreshErr, context.Canceled) {
					return refreshErr
				}
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}

// refreshLoop advances the engine on a fixed cadence until the context is
// cancelled. A failed refresh keeps the last good snapshots, so the loop
// logs and carries on rather than terminating.
func refreshLoop(ctx context.Context, eng *engine.Engine, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := eng.Refresh(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return ctx.Err()
				}
				logger.Warn("refresh failed", "err", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
