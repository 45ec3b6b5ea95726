package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one automated reminder pass and exit",
	Long: `Send document reminders to every candidate who has been waiting longer
than reminders.threshold and was not reminded within reminders.cooldown.

Suitable for an external scheduler such as a Kubernetes CronJob. With Redis
configured, concurrent passes are skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}

		app, err := newApplication(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.cleanup()

		result, err := app.sweep.SweepOnce(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d sent=%d skipped_cooldown=%d failed=%d\n",
			result.Scanned, result.Sent, result.SkippedCooldown, result.Failed)
		return err
	},
}

func init() {
	sweepCmd.Flags().String("database", "", "PostgreSQL URL")
	sweepCmd.Flags().String("redis", "", "Redis URL for the sweep lease")
}
