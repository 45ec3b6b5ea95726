package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/traqcheck/bgv-agent/internal/config"
)

// Log formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel maps a level name to a slog.Level, case-insensitively. Unknown
// names report false and yield info.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New creates a logger writing to w in the configured format. Records carry
// the trace and span ids of the context they are logged with.
func New(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	level, _ := ParseLevel(cfg.LogLevel)

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, FormatText) {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(NewTraceHandler(handler))
}

// Setup initializes and configures the application's logging system based on
// the provided configuration and sets the result as the default logger.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	if _, ok := ParseLevel(cfg.LogLevel); !ok {
		// Create a temporary logger to output the warning
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.LogLevel,
			"default_level", "info")
	}

	logger := New(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger, nil
}
