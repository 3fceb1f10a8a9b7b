package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/astro-gateway/internal/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server with graceful shutdown support.

SIGINT or SIGTERM stop accepting connections and drain in-flight requests
for up to server.shutdown_timeout before connections are closed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn().Err(err).Msg("Failed to close connections")
				}
			}()

			logger.Info().
				Str("version", versionInfo.Version).
				Str("addr", cfg.Server.Addr).
				Bool("redis", a.Redis != nil).
				Msg("Starting astro-gateway")

			errChan := make(chan error, 1)
			go func() {
				errChan <- a.Server.Start()
			}()

			select {
			case err := <-errChan:
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := a.Server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info().Msg("HTTP server stopped gracefully")
			return nil
		},
	}
}
