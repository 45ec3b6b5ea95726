// Package logger provides structured logging functionality for the application.
//
// It builds log/slog loggers with JSON output for production or tinted console
// output for local development, stamps records with the active trace and span
// ids, and carries request-scoped loggers through a context.
package logger
