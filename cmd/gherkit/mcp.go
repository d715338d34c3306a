package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start gherkit as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			deps := mcp.Deps{
				Cache:   a.cache,
				Files:   a.writer,
				Tracker: a.tracker,
				Budget:  a.budget,
				Logger:  a.logger,
				Version: version,
			}
			// Without an API key the read-only tools still work.
			if err := a.withPipeline(); err != nil {
				a.logger.Warn("generation tool unavailable", zap.Error(err))
			} else {
				deps.Generator = a.orch
			}
			return mcp.New(deps).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
