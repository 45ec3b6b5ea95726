package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter routes events to the handlers subscribed to their type.
// Delivery is synchronous and in subscription order.
type InMemoryEventEmitter struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	logger      *slog.Logger
}

// NewInMemoryEventEmitter creates an emitter with no subscribers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With("component", "event_emitter"),
	}
}

// Subscribe registers handler for events of taskType.
func (e *InMemoryEventEmitter) Subscribe(taskType string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers[taskType] = append(e.subscribers[taskType], handler)
	e.logger.Debug("event handler subscribed",
		"event_type", taskType,
		"subscriber_count", len(e.subscribers[taskType]))
}

// Subscribers returns the number of handlers registered for taskType.
func (e *InMemoryEventEmitter) Subscribers(taskType string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[taskType])
}

// EmitEvent hands the event to every subscriber of its type. An event nobody
// subscribed to fails with ErrNoSubscribers rather than being dropped. Every
// subscriber runs even when an earlier one fails; the failures are joined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskRequestEvent) error {
	if event == nil {
		return errors.New("cannot emit a nil event")
	}

	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.subscribers[event.Type]...)
	e.mu.RUnlock()

	logger := e.logger.With("event_id", event.ID, "event_type", event.Type)
	if len(handlers) == 0 {
		logger.Warn("event has no subscribers")
		return fmt.Errorf("%w: %s", ErrNoSubscribers, event.Type)
	}

	var errs []error
	for i, h := range handlers {
		if err := h.HandleEvent(ctx, event); err != nil {
			logger.Error("event handler failed", "subscriber", i, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Debug("event delivered", "subscriber_count", len(handlers))
	return nil
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)
