package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry" validate:"required"`
	Escalator EscalatorConfig `mapstructure:"escalator" validate:"required"`
	Reminders ReminderConfig  `mapstructure:"reminders"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// RedisConfig enables the distributed audit lock and sweep lease.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	Model        string        `mapstructure:"model" validate:"required"`
	Temperature  float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	CallTimeout  time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	MaxTurns     int           `mapstructure:"max_turns" validate:"gt=0"`
}

// RateLimitConfig sizes the shared agent rate limiter.
type RateLimitConfig struct {
	Capacity int           `mapstructure:"capacity" validate:"gt=0"`
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
}

// RetryConfig controls the inner quota retry loop.
type RetryConfig struct {
	MaxInnerAttempts int           `mapstructure:"max_inner_attempts" validate:"gte=0"`
	BaseDelay        time.Duration `mapstructure:"base_delay" validate:"gt=0"`
}

// EscalatorConfig controls outer retries and the task runner. A zero
// FinishedTaskRetention keeps finished tasks forever.
type EscalatorConfig struct {
	Composition           string        `mapstructure:"composition" validate:"oneof=additive quota_aware"`
	MaxRetries            int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay             time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	Workers               int           `mapstructure:"workers" validate:"gt=0"`
	QueueSize             int           `mapstructure:"queue_size" validate:"gt=0"`
	StuckTaskAge          time.Duration `mapstructure:"stuck_task_age" validate:"gt=0"`
	FinishedTaskRetention time.Duration `mapstructure:"finished_task_retention" validate:"gte=0"`
}

// ReminderConfig controls the automated reminder sweep.
type ReminderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold time.Duration `mapstructure:"threshold" validate:"gt=0"`
	Cooldown  time.Duration `mapstructure:"cooldown" validate:"gt=0"`
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// SMTPConfig configures outgoing mail. An empty host disables SMTP.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
}

// AdminConfig holds the fallback notification recipient.
type AdminConfig struct {
	Email       string `mapstructure:"email" validate:"omitempty,email"`
	FrontendURL string `mapstructure:"frontend_url" validate:"omitempty,url"`
}

// AuthConfig contains the service gate settings. Both empty disables the gate.
type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	ServiceSecretHash string `mapstructure:"service_secret_hash"`
}

// TracingConfig configures the Jaeger exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"omitempty,url"`
	ServiceName string `mapstructure:"service_name"`
}
