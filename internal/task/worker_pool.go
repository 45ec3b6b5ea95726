package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/traqcheck/bgv-agent/internal/metrics"
)

// Handler processes one task on behalf of a worker.
type Handler func(ctx context.Context, task Task, workerID int)

// WorkerPoolConfig sizes a WorkerPool. A non-positive WorkerCount means one
// worker.
type WorkerPoolConfig struct {
	WorkerCount int
}

// WorkerPool runs a fixed set of goroutines draining a TaskQueueReader. A
// panicking handler is recovered and reported to the error handler, so one
// bad record cannot take a worker down.
type WorkerPool struct {
	queue   TaskQueueReader
	size    int
	handler Handler
	onError func(task Task, err error)
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	busy   atomic.Int32
}

// NewWorkerPool creates a stopped pool. Until SetHandler is called each task
// is simply executed and failures go to the error handler.
func NewWorkerPool(queue TaskQueueReader, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	size := config.WorkerCount
	if size <= 0 {
		logger.Warn("worker count must be positive, starting one worker", "configured", config.WorkerCount)
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		queue:  queue,
		size:   size,
		logger: logger.With("component", "worker_pool"),
		ctx:    ctx,
		cancel: cancel,
	}
	p.handler = p.execute
	return p
}

// SetErrorHandler receives task failures and recovered panics.
func (p *WorkerPool) SetErrorHandler(fn func(task Task, err error)) {
	p.onError = fn
}

// SetHandler replaces the per-task handler. Call it before Start.
func (p *WorkerPool) SetHandler(handler Handler) {
	p.handler = handler
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Busy returns the number of workers currently running a task.
func (p *WorkerPool) Busy() int {
	return int(p.busy.Load())
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	p.logger.Info("starting workers", "worker_count", p.size)
	p.wg.Add(p.size)
	for id := range p.size {
		go p.loop(id)
	}
}

// Stop tells the workers to exit and waits for in-flight tasks. Tasks still
// buffered in the queue are left there.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("workers stopped")
}

func (p *WorkerPool) loop(id int) {
	defer p.wg.Done()
	tasks := p.queue.GetChannel()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-tasks:
			if !ok {
				p.logger.Debug("queue closed, worker exiting", "worker_id", id)
				return
			}
			metrics.QueueDepth.Set(float64(len(tasks)))
			// Shutdown must not abort a delivery halfway.
			p.run(context.WithoutCancel(p.ctx), t, id)
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, t Task, id int) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task panicked: %v", r)
			p.logger.Error("recovered from task panic",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"worker_id", id,
				"error", err)
			p.fail(t, err)
		}
	}()
	p.handler(ctx, t, id)
}

func (p *WorkerPool) execute(ctx context.Context, t Task, id int) {
	if err := t.Execute(ctx); err != nil {
		p.logger.Error("task failed",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"worker_id", id,
			"error", err)
		p.fail(t, err)
	}
}

func (p *WorkerPool) fail(t Task, err error) {
	if p.onError != nil {
		p.onError(t, err)
	}
}
