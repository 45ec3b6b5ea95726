package task

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockTask is a stored record with a pluggable Execute.
type MockTask struct {
	Record
	ExecuteFn func(ctx context.Context) error
}

func NewMockTask(id uuid.UUID, taskType string, payload []byte) *MockTask {
	return &MockTask{Record: Record{
		TaskID:      id,
		TaskType:    taskType,
		TaskPayload: payload,
		TaskStatus:  TaskStatusPending,
	}}
}

func (t *MockTask) Execute(ctx context.Context) error {
	if t.ExecuteFn == nil {
		return nil
	}
	return t.ExecuteFn(ctx)
}

// MockTaskStore keeps records in memory and hands back *Record values, the
// way the postgres store does, so the runner has to rebuild them.
type MockTaskStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record

	// SaveFn replaces SaveTask when set.
	SaveFn func(ctx context.Context, task Task) error
}

func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{records: make(map[uuid.UUID]Record)}
}

func (s *MockTaskStore) SaveTask(ctx context.Context, t Task) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, t)
	}
	s.Put(&Record{
		TaskID:      t.ID(),
		TaskType:    t.Type(),
		TaskPayload: t.Payload(),
		TaskStatus:  t.Status(),
	})
	return nil
}

// UpdateTaskStatus ignores unknown ids.
func (s *MockTaskStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status TaskStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	r.TaskStatus = status
	r.ErrorMessage = errorMsg
	r.UpdatedAt = time.Now()
	s.records[id] = r
	return nil
}

// Put stores a record directly.
func (s *MockTaskStore) Put(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *r
	stored.UpdatedAt = time.Now()
	s.records[r.TaskID] = stored
}

func (s *MockTaskStore) StatusOf(id uuid.UUID) (TaskStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r.TaskStatus, ok
}

func (s *MockTaskStore) matching(keep func(Record) bool) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, r := range s.records {
		if keep(r) {
			out = append(out, &r)
		}
	}
	return out
}

func (s *MockTaskStore) GetPendingTasks(context.Context) ([]Task, error) {
	return s.matching(func(r Record) bool { return r.TaskStatus == TaskStatusPending }), nil
}

func (s *MockTaskStore) GetRetryingTasks(context.Context) ([]Task, error) {
	return s.matching(func(r Record) bool { return r.TaskStatus == TaskStatusRetrying }), nil
}

// GetProcessingTasks returns processing tasks untouched for longer than
// olderThan; zero returns all of them.
func (s *MockTaskStore) GetProcessingTasks(_ context.Context, olderThan time.Duration) ([]Task, error) {
	now := time.Now()
	return s.matching(func(r Record) bool {
		return r.TaskStatus == TaskStatusProcessing &&
			(olderThan == 0 || now.Sub(r.UpdatedAt) > olderThan)
	}), nil
}

func (s *MockTaskStore) DeleteFinishedTasks(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, r := range s.records {
		if r.TaskStatus.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MockTaskStore) WithTx(*sql.Tx) TaskStore {
	return s
}

var (
	_ Task      = (*MockTask)(nil)
	_ TaskStore = (*MockTaskStore)(nil)
)
