package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.withPipeline(); err != nil {
				return err
			}

			srv := server.New(a.orch, a.cache, a.writer, a.tracker, a.budget, server.Options{
				Listen:           cfg.Listen,
				APIKeyConfigured: cfg.LLM.APIKey != "",
				ReadTimeout:      cfg.Server.ReadTimeout,
				ShutdownTimeout:  cfg.Server.ShutdownTimeout,
				MaxUploadBytes:   cfg.Server.MaxUploadBytes,
				SweepInterval:    cfg.Cache.SweepInterval,
				Logger:           a.logger,
				Metrics:          a.metrics,
			})
			a.logger.Info("starting gherkit api",
				zap.String("listen", cfg.Listen),
				zap.String("model", cfg.LLM.Model),
				zap.Bool("cache", a.cache.Enabled()),
			)
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
