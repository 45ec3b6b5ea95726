package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/traqcheck/bgv-agent/internal/metrics"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is the bounded hand-off between the runner and its workers.
// Enqueue never blocks: a full queue rejects the task, which stays in the
// store and is picked up again by recovery or the stuck task monitor.
type TaskQueue struct {
	mu     sync.RWMutex
	ch     chan Task
	closed bool
	logger *slog.Logger
}

// NewTaskQueue creates a queue holding up to capacity tasks (at least one).
func NewTaskQueue(capacity int, logger *slog.Logger) *TaskQueue {
	return &TaskQueue{
		ch:     make(chan Task, max(capacity, 1)),
		logger: logger.With("component", "task_queue"),
	}
}

// Enqueue hands t to the workers.
func (q *TaskQueue) Enqueue(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.QueueRejections.WithLabelValues(t.Type(), "closed").Inc()
		return ErrQueueClosed
	}

	select {
	case q.ch <- t:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		q.logger.Debug("task queued",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"depth", len(q.ch))
		return nil
	default:
		metrics.QueueRejections.WithLabelValues(t.Type(), "full").Inc()
		q.logger.Warn("task queue full, task left for recovery",
			"task_id", t.ID(),
			"task_type", t.Type())
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(q.ch))
	}
}

// Close stops accepting tasks. Buffered tasks can still be drained.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len returns the number of buffered tasks.
func (q *TaskQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *TaskQueue) Cap() int {
	return cap(q.ch)
}

// GetChannel returns the channel workers consume from.
func (q *TaskQueue) GetChannel() <-chan Task {
	return q.ch
}
