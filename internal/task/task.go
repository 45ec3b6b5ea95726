package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state persisted for a task.
type TaskStatus string

// Task states. Completed, failed and escalated are terminal; retrying marks a
// delivery waiting out a backoff delay.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusRetrying   TaskStatus = "retrying"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusEscalated  TaskStatus = "escalated"
)

// TerminalStatuses lists the states no task leaves.
var TerminalStatuses = []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusEscalated}

// Terminal reports whether no further work happens for a task in s.
func (s TaskStatus) Terminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// TaskTypeCredentialDelivery delivers onboarding credentials to a candidate.
const TaskTypeCredentialDelivery = "credential_delivery"

var (
	ErrSchedulerStopped = errors.New("scheduler is stopped")
	ErrUnknownTaskType  = errors.New("unknown task type")
	ErrNilLogger        = errors.New("logger cannot be nil")
)

// Task is a unit of background work. Payload is what the store persists;
// Execute is only meaningful on tasks built by a TaskFactory.
type Task interface {
	ID() uuid.UUID
	Type() string
	Payload() []byte
	Status() TaskStatus
	Execute(ctx context.Context) error
}

// Scheduler persists tasks and queues them now or after a delay.
type Scheduler interface {
	Schedule(t Task, delay time.Duration) error
	ScheduleNow(t Task) error
}

// TaskFactory rebuilds an executable task from a stored record.
type TaskFactory func(record Task) (Task, error)

// TaskQueueReader is the consuming side of a TaskQueue.
type TaskQueueReader interface {
	GetChannel() <-chan Task
}

// TaskStore persists tasks so unfinished deliveries survive a restart.
type TaskStore interface {
	// SaveTask upserts the task's type, payload and status.
	SaveTask(ctx context.Context, task Task) error

	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	GetPendingTasks(ctx context.Context) ([]Task, error)
	GetRetryingTasks(ctx context.Context) ([]Task, error)

	// GetProcessingTasks returns processing tasks last updated more than
	// olderThan ago; zero returns all of them.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]Task, error)

	// DeleteFinishedTasks removes terminal tasks last updated more than
	// olderThan ago and returns how many went. Delivery payloads carry the
	// candidate's temporary password, so finished rows are not kept forever.
	DeleteFinishedTasks(ctx context.Context, olderThan time.Duration) (int64, error)

	WithTx(tx *sql.Tx) TaskStore
}

// Record is a task as loaded from a TaskStore. It carries the stored data
// but cannot run until a TaskFactory turns it back into a concrete task.
type Record struct {
	TaskID       uuid.UUID
	TaskType     string
	TaskPayload  []byte
	TaskStatus   TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ID returns the task's unique identifier
func (r *Record) ID() uuid.UUID { return r.TaskID }

// Type returns the task type identifier
func (r *Record) Type() string { return r.TaskType }

// Payload returns the stored payload
func (r *Record) Payload() []byte { return r.TaskPayload }

// Status returns the stored status
func (r *Record) Status() TaskStatus { return r.TaskStatus }

// Execute always fails; records must be rebuilt by a TaskFactory.
func (r *Record) Execute(ctx context.Context) error {
	return ErrUnknownTaskType
}
