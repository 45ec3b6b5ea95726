package main

import (
	"github.com/spf13/cobra"

	"github.com/traqcheck/bgv-agent/internal/config"
	"github.com/traqcheck/bgv-agent/internal/platform/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server, task runner and reminder sweep",
	Long: `Start the agent service.

Unfinished credential deliveries are recovered from the task store before the
server accepts requests. SIGINT or SIGTERM drains in-flight requests and tasks.
Changes to the config file are picked up for the LLM settings without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on")
	serveCmd.Flags().String("database", "", "PostgreSQL URL; empty uses in-memory stores")
	serveCmd.Flags().String("redis", "", "Redis URL for distributed locks")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, v, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(cmd.Context()); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	app, err := newApplication(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		return err
	}

	config.Watch(v, app.applyConfig, func(err error) {
		logger.Error("ignoring invalid config change", "error", err)
	})

	return app.Run(cmd.Context())
}
