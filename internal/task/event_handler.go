package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/events"
)

// CredentialSubmitter queues credential deliveries.
type CredentialSubmitter interface {
	Submit(ctx context.Context, id uuid.UUID, p CredentialPayload) (uuid.UUID, error)
}

// TaskFactoryEventHandler implements events.EventHandler. It turns
// credential delivery events into escalator work items, keyed by the event ID
// so the caller can track the task it asked for.
type TaskFactoryEventHandler struct {
	credentials CredentialSubmitter
	logger      *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler.
func NewTaskFactoryEventHandler(credentials CredentialSubmitter, logger *slog.Logger) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		credentials: credentials,
		logger:      logger.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent processes credential delivery events and ignores others.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != TaskTypeCredentialDelivery {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload CredentialPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	taskID, err := h.credentials.Submit(ctx, event.ID, payload)
	if err != nil {
		h.logger.Error("failed to submit credential delivery",
			"error", err,
			"bgv_request_id", payload.BGVRequestID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("credential delivery submitted",
		"task_id", taskID,
		"bgv_request_id", payload.BGVRequestID,
		"audit_log_id", payload.AuditLogID)
	return nil
}

var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
