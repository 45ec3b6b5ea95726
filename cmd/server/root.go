package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/traqcheck/bgv-agent/internal/config"
	"github.com/traqcheck/bgv-agent/internal/platform/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bgv-agent",
	Short: "Agent service for background verification onboarding",
	Long: `bgv-agent sends candidate credentials and document reminders on behalf
of the BGV workflow backend.

Configuration is read from defaults, an optional config file and BGV_
environment variables, in increasing precedence. Flags override all three.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides "+config.ConfigFileEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, auditCmd, resetAgentCmd)
}

// loadConfig builds the viper instance for cmd, binds the flags cmd knows
// about onto their config keys and returns the validated configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, *viper.Viper, error) {
	if err := config.LoadEnvFile(); err != nil {
		return nil, nil, err
	}
	if cfgFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, cfgFile); err != nil {
			return nil, nil, fmt.Errorf("failed to set config file: %w", err)
		}
	}

	v, err := config.NewViper()
	if err != nil {
		return nil, nil, err
	}
	if err := bindFlags(v, cmd); err != nil {
		return nil, nil, err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, v, nil
}

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"log-level": "server.log_level",
	"port":      "server.port",
	"database":  "database.url",
	"redis":     "redis.url",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.InheritedFlags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return l, nil
}
