package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/task"
)

// TaskStore implements task.TaskStore in memory.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*task.Record
	now   func() time.Time
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*task.Record),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SaveTask inserts the task or refreshes its payload and status.
func (s *TaskStore) SaveTask(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.tasks[t.ID()]; ok {
		rec.TaskPayload = append([]byte(nil), t.Payload()...)
		rec.TaskStatus = t.Status()
		rec.UpdatedAt = now
		return nil
	}

	s.tasks[t.ID()] = &task.Record{
		TaskID:      t.ID(),
		TaskType:    t.Type(),
		TaskPayload: append([]byte(nil), t.Payload()...),
		TaskStatus:  t.Status(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

// UpdateTaskStatus sets the status. Unknown IDs are ignored.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.TaskStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	rec.TaskStatus = status
	rec.ErrorMessage = errorMsg
	rec.UpdatedAt = s.now()
	return nil
}

// GetPendingTasks returns pending tasks, oldest first.
func (s *TaskStore) GetPendingTasks(ctx context.Context) ([]task.Task, error) {
	return s.byStatus(task.TaskStatusPending, 0), nil
}

// GetRetryingTasks returns tasks waiting on a retry delay, oldest first.
func (s *TaskStore) GetRetryingTasks(ctx context.Context) ([]task.Task, error) {
	return s.byStatus(task.TaskStatusRetrying, 0), nil
}

// GetProcessingTasks returns processing tasks, optionally only those not
// updated within olderThan.
func (s *TaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.Task, error) {
	return s.byStatus(task.TaskStatusProcessing, olderThan), nil
}

// DeleteFinishedTasks drops terminal tasks not updated within olderThan.
func (s *TaskStore) DeleteFinishedTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var n int64
	for id, rec := range s.tasks {
		if rec.TaskStatus.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of a stored record.
func (s *TaskStore) Get(id uuid.UUID) (*task.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	c := *rec
	return &c, true
}

// WithTx returns the store itself; memory stores have no transactions.
func (s *TaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return s
}

func (s *TaskStore) byStatus(status task.TaskStatus, olderThan time.Duration) []task.Task {
	s.mu.RLock()
	var recs []*task.Record
	cutoff := s.now().Add(-olderThan)
	for _, rec := range s.tasks {
		if rec.TaskStatus != status {
			continue
		}
		if olderThan > 0 && !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		c := *rec
		recs = append(recs, &c)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})

	out := make([]task.Task, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}

var _ task.TaskStore = (*TaskStore)(nil)
