package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heibot/modguard/api"
	"github.com/heibot/modguard/config"
	"github.com/heibot/modguard/filters"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the moderation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		if err := runServe(cfg, logger); err != nil {
			logger.Error("serve failed", zap.Error(err))
			return err
		}
		return nil
	},
}

func runServe(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	refresher, err := filters.NewRefresher(a.registry, cfg.Filters.RefreshCron, 10*time.Second, logger.Named("filters"))
	if err != nil {
		return fmt.Errorf("schedule filter refresh %q: %w", cfg.Filters.RefreshCron, err)
	}
	refresher.Start()
	defer refresher.Stop()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter *api.ClientLimiter
	if cfg.Server.RPS > 0 {
		limiter = api.NewClientLimiter(cfg.Server.RPS, cfg.Server.Burst)
		go limiter.Run(ctx, time.Minute, 5*time.Minute)
	}

	router := api.NewRouter(a.client, api.Options{
		Logger:      logger.Named("api"),
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("modguard listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("ratelimit", cfg.RateLimit.Backend),
			zap.String("provider", cfg.Providers.Active),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
