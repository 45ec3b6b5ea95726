package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. BGV_SERVER_PORT.
const EnvPrefix = "BGV"

// ConfigFileEnv names an optional config file.
const ConfigFileEnv = "BGV_CONFIG_FILE"

// ErrTracingEndpoint is returned when tracing is enabled without an endpoint.
var ErrTracingEndpoint = errors.New("tracing.endpoint is required when tracing is enabled")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("redis.url", "")

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.call_timeout", "200s")
	v.SetDefault("llm.max_turns", 8)

	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.window", "60s")

	v.SetDefault("retry.max_inner_attempts", 3)
	v.SetDefault("retry.base_delay", "10s")

	v.SetDefault("escalator.composition", "additive")
	v.SetDefault("escalator.max_retries", 3)
	v.SetDefault("escalator.base_delay", "60s")
	v.SetDefault("escalator.workers", 2)
	v.SetDefault("escalator.queue_size", 100)
	v.SetDefault("escalator.stuck_task_age", "30m")
	v.SetDefault("escalator.finished_task_retention", "168h")

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.threshold", "72h")
	v.SetDefault("reminders.cooldown", "48h")
	v.SetDefault("reminders.interval", "1h")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.frontend_url", "http://localhost:3000")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.service_secret_hash", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "bgv-agent")
}

// NewViper builds the viper instance Load reads from: defaults, the optional
// config file and BGV_ environment variables, in increasing precedence.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}

	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// LoadEnvFile loads ./.env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := getValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return nil, fmt.Errorf("invalid configuration: %w", ErrTracingEndpoint)
	}
	return cfg, nil
}

// Watch re-reads the config file when it changes and passes the new,
// validated configuration to fn. Invalid revisions are reported to onErr and
// skipped. It is a no-op when v has no config file.
func Watch(v *viper.Viper, fn func(*Config), onErr func(error)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := FromViper(v)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}
