package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "migrations"

	// MigrationTableName is the goose version table.
	MigrationTableName = "schema_migrations"
)

// Migration commands accepted by Migrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateReset   = "reset"
	MigrateStatus  = "status"
	MigrateVersion = "version"
)

// ErrUnknownMigrationCommand is returned for commands Migrate does not know.
var ErrUnknownMigrationCommand = errors.New("unknown migration command")

// slogGooseLogger forwards goose output to slog. Fatalf does not exit so
// the caller decides how to fail.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Migrate runs a goose command against the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations", "command", command)

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(&slogGooseLogger{logger: logger})
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	var err error
	switch command {
	case MigrateUp:
		err = goose.UpContext(ctx, db, migrationsDir)
	case MigrateDown:
		err = goose.DownContext(ctx, db, migrationsDir)
	case MigrateReset:
		err = goose.ResetContext(ctx, db, migrationsDir)
	case MigrateStatus:
		err = goose.StatusContext(ctx, db, migrationsDir)
	case MigrateVersion:
		err = goose.VersionContext(ctx, db, migrationsDir)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMigrationCommand, command)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	logger.Info("migration command finished")
	return nil
}
