package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/carecompanion/internal/app"
	"github.com/ent0n29/carecompanion/internal/config"
	"github.com/ent0n29/carecompanion/internal/observability"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development care backend (POST /chat, GET /chat/ws)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			srv, err := app.BuildServer(ctx, cfg, logger, observability.NewMetrics(cfg.MetricsNamespace))
			if err != nil {
				return err
			}
			defer srv.Backend.Cleanup()

			httpServer := &http.Server{
				Addr:    cfg.BindAddr,
				Handler: srv.API.Router(),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("server listening", zap.String("addr", cfg.BindAddr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutdown signal received")
				shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer stop()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("graceful shutdown failed", zap.Error(err))
					_ = httpServer.Close()
				}
				return nil
			})

			err = g.Wait()
			logger.Info("shutdown complete")
			return err
		},
	}
	cmd.Flags().String("addr", "", "listen address (default APP_BIND_ADDR or :8000)")
	_ = v.BindPFlag(config.KeyBindAddr, cmd.Flags().Lookup("addr"))
	return cmd
}
