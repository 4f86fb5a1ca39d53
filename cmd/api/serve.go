package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salon/internal/app"
	"salon/internal/logging"
	"salon/internal/observability"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	stores, closeStores, err := openStores(cfg, log, metrics)
	if err != nil {
		return err
	}
	defer closeStores()

	limiter, closeLimiter, err := newLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLimiter()

	a, err := app.New(cfg, stores, app.Externals{
		Sender:   newSender(cfg, log),
		Limiter:  limiter,
		Provider: newProvider(cfg),
		Metrics:  metrics,
		Log:      log,
	})
	if err != nil {
		return err
	}

	sweeper := a.NewSweeper()
	sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start(cfg.ListenAddr())
	}()

	log.Info("api ready",
		"env", cfg.GoEnv,
		"store", cfg.StoreDriver,
		"google", cfg.GoogleEnabled(),
		"redis", cfg.RedisURL != "",
	)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logging.LogError(log, "server stopped", err)
			sweeper.Stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		logging.LogError(log, "graceful shutdown failed", err)
	}

	sweeper.Stop()
	a.Inactivity.Wait()
	return nil
}
