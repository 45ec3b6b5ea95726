package task

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask() *MockTask {
	return NewMockTask(uuid.New(), TaskTypeCredentialDelivery, []byte(`{"bgv_request_id":42}`))
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestTaskQueue_Capacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 10, NewTaskQueue(10, setupTestLogger()).Cap())
	assert.Equal(t, 1, NewTaskQueue(0, setupTestLogger()).Cap())
	assert.Equal(t, 1, NewTaskQueue(-3, setupTestLogger()).Cap())
}

func TestTaskQueue_RejectsWhenFull(t *testing.T) {
	t.Parallel()
	queue := NewTaskQueue(2, setupTestLogger())

	require.NoError(t, queue.Enqueue(newTestTask()))
	require.NoError(t, queue.Enqueue(newTestTask()))
	assert.Equal(t, 2, queue.Len())

	overflow := newTestTask()
	err := queue.Enqueue(overflow)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Contains(t, err.Error(), "capacity 2")

	<-queue.GetChannel()
	require.NoError(t, queue.Enqueue(overflow))
	assert.Equal(t, 2, queue.Len())
}

func TestTaskQueue_CloseDrains(t *testing.T) {
	t.Parallel()
	queue := NewTaskQueue(4, setupTestLogger())
	queued := newTestTask()
	require.NoError(t, queue.Enqueue(queued))

	queue.Close()
	queue.Close()
	assert.ErrorIs(t, queue.Enqueue(newTestTask()), ErrQueueClosed)

	got := <-queue.GetChannel()
	assert.Equal(t, queued.ID(), got.ID())

	select {
	case _, ok := <-queue.GetChannel():
		assert.False(t, ok, "drained queue should report closed")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("closed queue blocked")
	}
}

func TestTaskQueue_ConcurrentProducers(t *testing.T) {
	t.Parallel()
	queue := NewTaskQueue(64, setupTestLogger())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 8 {
				assert.NoError(t, queue.Enqueue(newTestTask()))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, queue.Len())
}
