package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/traqcheck/bgv-agent/internal/platform/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|reset|status|version]",
	Short:     "Run database migrations",
	Long:      `Apply, roll back or inspect the embedded PostgreSQL migrations.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateReset, postgres.MigrateStatus, postgres.MigrateVersion},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for migrations")
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		db, err := postgres.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := postgres.Migrate(cmd.Context(), db.DB, args[0], logger); err != nil {
			return err
		}
		logger.Info("migration command completed", "command", args[0])
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("database", "", "PostgreSQL URL")
}
