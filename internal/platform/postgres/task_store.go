package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/platform/logger"
	"github.com/traqcheck/bgv-agent/internal/store"
	"github.com/traqcheck/bgv-agent/internal/task"
)

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// SaveTask persists a task. Saving an existing task replaces its payload
// and status, which is how retries record their attempt count.
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			error_message = NULL,
			updated_at = EXCLUDED.updated_at`,
		t.ID(),
		t.Type(),
		string(t.Payload()),
		string(t.Status()),
		now,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err, nil))
	}

	return nil
}

// UpdateTaskStatus updates the status of a task. An unknown id is a no-op.
func (s *PostgresTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, error_message = NULLIF($2, ''), updated_at = $3
		WHERE id = $4`,
		string(status),
		errorMsg,
		time.Now().UTC(),
		taskID,
	)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		log.Warn("no task found with ID to update status", "task_id", taskID)
	}
	return nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]task.Task, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusPending, 0)
}

// GetRetryingTasks retrieves tasks waiting on a retry delay
func (s *PostgresTaskStore) GetRetryingTasks(ctx context.Context) ([]task.Task, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusRetrying, 0)
}

// GetProcessingTasks retrieves tasks with "processing" status
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.Task, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

// DeleteFinishedTasks removes terminal tasks not updated within olderThan.
func (s *PostgresTaskStore) DeleteFinishedTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	placeholders := make([]string, len(task.TerminalStatuses))
	args := make([]any, 0, len(task.TerminalStatuses)+1)
	for i, status := range task.TerminalStatuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(status))
	}
	args = append(args, time.Now().UTC().Add(-olderThan))

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM tasks
		WHERE status IN (%s) AND updated_at < $%d`,
		strings.Join(placeholders, ", "), len(args)), args...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete finished tasks", "error", err)
		return 0, fmt.Errorf("failed to delete finished tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted tasks: %w", err)
	}
	return n, nil
}

// WithTx returns a store bound to the transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{db: tx}
}

func (s *PostgresTaskStore) getTasksByStatus(
	ctx context.Context,
	status task.TaskStatus,
	olderThan time.Duration,
) ([]task.Task, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, type, payload, status, error_message, created_at, updated_at
		FROM tasks
		WHERE status = $1`
	args := []any{string(status)}
	if olderThan > 0 {
		query += ` AND updated_at < $2`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var (
			r            task.Record
			taskStatus   string
			payload      []byte
			errorMessage sql.NullString
		)
		if err := rows.Scan(&r.TaskID, &r.TaskType, &payload, &taskStatus, &errorMessage,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			log.Error("failed to scan task row",
				"status", status,
				"error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		r.TaskPayload = payload
		r.TaskStatus = task.TaskStatus(taskStatus)
		r.ErrorMessage = errorMessage.String
		tasks = append(tasks, &r)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)
