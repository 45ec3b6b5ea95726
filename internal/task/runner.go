package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/clock"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// FinishedTaskRetention is how long terminal tasks are kept. Zero keeps
	// them forever.
	FinishedTaskRetention time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		FinishedTaskRetention:  7 * 24 * time.Hour,
	}
}

// TaskRunner persists, schedules and executes tasks. It implements Scheduler:
// delayed tasks wait on a clock timer and are queued when it fires.
type TaskRunner struct {
	store     TaskStore
	queue     *TaskQueue
	pool      *WorkerPool
	clock     clock.Clock
	config    TaskRunnerConfig
	logger    *slog.Logger
	factories map[string]TaskFactory

	mu       sync.Mutex
	timers   map[uuid.UUID]clock.Timer
	stranded map[uuid.UUID]Task // due delayed tasks that found the queue full
	stopped  bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	errHandler func(task Task, err error)
}

// RunnerOption customizes a TaskRunner.
type RunnerOption func(*TaskRunner)

// WithRunnerClock sets the clock used for delayed scheduling.
func WithRunnerClock(c clock.Clock) RunnerOption {
	return func(r *TaskRunner) {
		r.clock = c
	}
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(store TaskStore, config TaskRunnerConfig, logger *slog.Logger, opts ...RunnerOption) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	queue := NewTaskQueue(config.QueueSize, logger)
	r := &TaskRunner{
		store:      store,
		queue:      queue,
		pool:       NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger),
		clock:      clock.New(),
		config:     config,
		logger:     logger,
		factories:  make(map[string]TaskFactory),
		timers:     make(map[uuid.UUID]clock.Timer),
		stranded:   make(map[uuid.UUID]Task),
		ctx:        ctx,
		cancelFunc: cancel,
		errHandler: func(task Task, err error) {
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool.SetHandler(r.processTask)
	r.pool.SetErrorHandler(r.failPanicked)
	return r
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// RegisterFactory registers the factory used by Recover for a task type.
func (r *TaskRunner) RegisterFactory(taskType string, factory TaskFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
}

// Submit adds a new task to the queue
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return r.enqueue(task)
}

// ScheduleNow persists the task and queues it.
func (r *TaskRunner) ScheduleNow(t Task) error {
	return r.Submit(context.Background(), t)
}

// Schedule persists the task and queues it after delay. Stop cancels
// pending delays; the task stays in the store for Recover.
func (r *TaskRunner) Schedule(t Task, delay time.Duration) error {
	if delay <= 0 {
		return r.ScheduleNow(t)
	}

	if err := r.store.SaveTask(context.Background(), t); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrSchedulerStopped
	}

	id := t.ID()
	if prev, ok := r.timers[id]; ok {
		prev.Stop()
	}
	r.timers[id] = r.clock.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, id)
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return
		}
		if err := r.queue.Enqueue(t); err != nil {
			r.strand(t)
			r.logger.Warn("delayed task not queued, retrying on next monitor pass",
				"task_id", id,
				"task_type", t.Type(),
				"error", err)
		}
	})

	r.logger.Debug("task scheduled",
		"task_id", id,
		"task_type", t.Type(),
		"delay", delay)
	return nil
}

// Pending returns the number of tasks waiting on a delay, including delayed
// tasks that are due but could not be queued yet.
func (r *TaskRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers) + len(r.stranded)
}

func (r *TaskRunner) strand(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stranded[t.ID()] = t
	}
}

// requeueStranded queues due delayed tasks that found the queue full. Tasks
// that still do not fit stay stranded for the next pass.
func (r *TaskRunner) requeueStranded() {
	r.mu.Lock()
	due := make([]Task, 0, len(r.stranded))
	for _, t := range r.stranded {
		due = append(due, t)
	}
	r.mu.Unlock()

	for _, t := range due {
		if err := r.enqueue(t); err != nil {
			r.logger.Warn("stranded task still not queued",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"error", err)
			continue
		}
		r.mu.Lock()
		delete(r.stranded, t.ID())
		r.mu.Unlock()
		r.logger.Info("requeued stranded task",
			"task_id", t.ID(),
			"task_type", t.Type())
	}
}

func (r *TaskRunner) enqueue(t Task) error {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return ErrSchedulerStopped
	}
	return r.queue.Enqueue(t)
}

// Start initializes the worker pool and begins processing tasks
func (r *TaskRunner) Start() error {
	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop cancels delayed tasks and waits for in-flight tasks to finish. Delayed
// and stranded tasks stay in the store as retrying for Recover.
func (r *TaskRunner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
	clear(r.stranded)
	r.mu.Unlock()

	r.cancelFunc()
	r.pool.Stop()
	r.wg.Wait()
	r.queue.Close()
}

// Recover reloads unfinished tasks from the store and queues them again.
// Tasks that were waiting on a retry delay are dispatched immediately.
func (r *TaskRunner) Recover(ctx context.Context) error {
	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	retryingTasks, err := r.store.GetRetryingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get retrying tasks: %w", err)
	}

	// Tasks in "processing" were interrupted by a crash.
	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"retrying_count", len(retryingTasks),
		"processing_count", len(processingTasks))

	for _, record := range processingTasks {
		if err := r.store.UpdateTaskStatus(ctx, record.ID(), TaskStatusPending, "Reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", record.ID(),
				"task_type", record.Type(),
				"error", err)
			continue
		}
		pendingTasks = append(pendingTasks, record)
	}

	for _, record := range append(pendingTasks, retryingTasks...) {
		t, err := r.rebuild(record)
		if err != nil {
			r.logger.Error("failed to rebuild task",
				"task_id", record.ID(),
				"task_type", record.Type(),
				"error", err)
			if updateErr := r.store.UpdateTaskStatus(ctx, record.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
				r.logger.Error("failed to mark unrecoverable task as failed", "error", updateErr)
			}
			continue
		}
		if err := r.queue.Enqueue(t); err != nil {
			r.logger.Error("failed to requeue task",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"error", err)
		}
	}

	return nil
}

func (r *TaskRunner) rebuild(record Task) (Task, error) {
	if _, ok := record.(*Record); !ok {
		return record, nil
	}

	r.mu.Lock()
	factory, ok := r.factories[record.Type()]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, record.Type())
	}
	return factory(record)
}

// processTask handles execution of a single task
func (r *TaskRunner) processTask(ctx context.Context, task Task, workerID int) {
	logger := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}

	logger.Info("processing task")

	err := task.Execute(ctx)

	switch {
	case err == nil:
		logger.Info("task completed successfully")
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusCompleted, ""); updateErr != nil {
			logger.Error("failed to update task status to completed", "error", updateErr)
		}

	case errors.Is(err, ErrRetryScheduled):
		// The retry was persisted by Schedule.
		logger.Info("task attempt failed, retry scheduled", "error", err)

	case errors.Is(err, ErrEscalated):
		logger.Warn("task escalated", "error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusEscalated, err.Error()); updateErr != nil {
			logger.Error("failed to update task status to escalated", "error", updateErr)
		}

	default:
		logger.Error("task execution failed", "error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			logger.Error("failed to update task status to failed", "error", updateErr)
		}
		r.errHandler(task, err)
	}
}

// failPanicked marks a task whose handler panicked as failed so recovery does
// not replay it.
func (r *TaskRunner) failPanicked(t Task, err error) {
	if updateErr := r.store.UpdateTaskStatus(context.Background(), t.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
		r.logger.Error("failed to mark panicked task as failed",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", updateErr)
	}
	r.errHandler(t, err)
}

// stuckTaskMonitor periodically checks for tasks that have been in "processing"
// state for too long and resets them. It also requeues stranded retries and
// purges finished tasks.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	timer := r.clock.NewTimer(r.config.StuckTaskCheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-timer.C():
			r.resetStuckTasks(r.ctx)
			r.requeueStranded()
			r.purgeFinishedTasks(r.ctx)
			timer.Reset(r.config.StuckTaskCheckInterval)
		}
	}
}

func (r *TaskRunner) purgeFinishedTasks(ctx context.Context) {
	if r.config.FinishedTaskRetention <= 0 {
		return
	}
	n, err := r.store.DeleteFinishedTasks(ctx, r.config.FinishedTaskRetention)
	if err != nil {
		r.logger.Error("failed to purge finished tasks", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("purged finished tasks",
			"count", n,
			"retention", r.config.FinishedTaskRetention)
	}
}

func (r *TaskRunner) resetStuckTasks(ctx context.Context) {
	stuckTasks, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}
	if len(stuckTasks) == 0 {
		return
	}

	r.logger.Info("found stuck tasks", "count", len(stuckTasks))

	for _, record := range stuckTasks {
		if err := r.store.UpdateTaskStatus(ctx, record.ID(), TaskStatusPending,
			"Reset after being stuck in processing state"); err != nil {
			r.logger.Error("failed to reset stuck task status",
				"task_id", record.ID(),
				"task_type", record.Type(),
				"error", err)
			continue
		}

		t, err := r.rebuild(record)
		if err != nil {
			r.logger.Error("failed to rebuild stuck task",
				"task_id", record.ID(),
				"task_type", record.Type(),
				"error", err)
			continue
		}

		if err := r.queue.Enqueue(t); err != nil {
			r.logger.Error("failed to requeue stuck task",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"error", err)
			continue
		}
		r.logger.Info("requeued stuck task",
			"task_id", t.ID(),
			"task_type", t.Type())
	}
}

var _ Scheduler = (*TaskRunner)(nil)
