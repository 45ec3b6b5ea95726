package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/traqcheck/bgv-agent/internal/store"
)

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, r.err }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func pgError(code string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, Message: "boom", ConstraintName: "c", ColumnName: "col"}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		notFound error
		want     error
	}{
		{name: "no rows with sentinel", err: sql.ErrNoRows, notFound: store.ErrAuditLogNotFound, want: store.ErrAuditLogNotFound},
		{name: "wrapped no rows defaults", err: fmt.Errorf("scan: %w", sql.ErrNoRows), want: store.ErrNotFound},
		{name: "unique", err: pgError(uniqueViolationCode), want: store.ErrDuplicate},
		{name: "foreign key", err: pgError(foreignKeyViolationCode), want: store.ErrInvalidEntity},
		{name: "check", err: pgError(checkViolationCode), want: store.ErrInvalidEntity},
		{name: "not null", err: pgError(notNullViolationCode), want: store.ErrInvalidEntity},
		{name: "other pg code", err: pgError("40001"), want: nil},
		{name: "plain", err: plain, want: plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapError(tt.err, tt.notFound)
			if tt.want == nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.NoError(t, MapError(nil, nil))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgError(uniqueViolationCode))))
	assert.False(t, IsUniqueViolation(pgError(checkViolationCode)))
	assert.False(t, IsUniqueViolation(errors.New("duplicate")))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckRowsAffected(fakeResult{rows: 1}, nil))
	assert.ErrorIs(t, CheckRowsAffected(fakeResult{rows: 0}, store.ErrTaskNotFound), store.ErrTaskNotFound)
	assert.ErrorIs(t, CheckRowsAffected(fakeResult{rows: 0}, nil), store.ErrNotFound)
	assert.Error(t, CheckRowsAffected(fakeResult{err: errors.New("driver")}, nil))
	assert.Error(t, CheckRowsAffected(nil, nil))
}

func TestSplitFields(t *testing.T) {
	t.Parallel()

	set, removed := splitFields(map[string]any{
		"delivered":      true,
		"failure_reason": nil,
		"attempts":       2,
	})
	assert.Equal(t, map[string]any{"delivered": true, "attempts": 2}, set)
	assert.Equal(t, []string{"failure_reason"}, removed)
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrationsFS.ReadDir(migrationsDir)
	assert.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{
		"00001_create_bgv_requests.sql",
		"00002_create_agent_logs.sql",
		"00003_create_tasks.sql",
	}, names)
}
