package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/config"
	"github.com/traqcheck/bgv-agent/internal/platform/memory"
	"github.com/traqcheck/bgv-agent/internal/platform/postgres"
	"github.com/traqcheck/bgv-agent/internal/store"
	"github.com/traqcheck/bgv-agent/internal/task"
)

// stores bundles the persistence adapters selected by the configuration.
type stores struct {
	db       *sqlx.DB
	requests store.BGVRequestStore
	audit    audit.Store
	tasks    task.TaskStore
}

// openStores connects to PostgreSQL when a database URL is configured and
// falls back to the in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*stores, error) {
	if cfg.URL == "" {
		logger.Warn("no database configured, using in-memory stores; state is lost on restart")
		return &stores{
			requests: memory.NewBGVRequestStore(),
			audit:    memory.NewAuditStore(),
			tasks:    memory.NewTaskStore(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database connection established")

	return &stores{
		db:       db,
		requests: postgres.NewBGVRequestStore(db),
		audit:    postgres.NewAuditStore(db),
		tasks:    postgres.NewPostgresTaskStore(db),
	}, nil
}

// Close releases the database connection, if any.
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
