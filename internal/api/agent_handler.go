package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/api/shared"
	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/events"
	"github.com/traqcheck/bgv-agent/internal/store"
	"github.com/traqcheck/bgv-agent/internal/task"
)

// ServiceName is reported by GET /.
const ServiceName = "bgv-agent"

// AgentManager exposes the agent singleton's lifecycle.
type AgentManager interface {
	Initialized() bool
	Reset()
}

// AgentHandlerDeps are the collaborators of an AgentHandler.
type AgentHandlerDeps struct {
	Agent     AgentManager
	Requests  store.BGVRequestStore
	Audit     audit.Store
	Emitter   events.EventEmitter
	Reminders task.ReminderDispatcher
	Dedupe    *SubmissionDeduper
	Version   string
}

// AgentHandler serves the /agent endpoints and the service probes.
type AgentHandler struct {
	deps   AgentHandlerDeps
	logger *slog.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(deps AgentHandlerDeps, logger *slog.Logger) (*AgentHandler, error) {
	switch {
	case deps.Agent == nil:
		return nil, errors.New("agent manager cannot be nil")
	case deps.Requests == nil || deps.Audit == nil:
		return nil, errors.New("request and audit stores cannot be nil")
	case deps.Emitter == nil:
		return nil, errors.New("event emitter cannot be nil")
	case deps.Reminders == nil:
		return nil, errors.New("reminder dispatcher cannot be nil")
	case deps.Dedupe == nil:
		return nil, errors.New("submission deduper cannot be nil")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &AgentHandler{deps: deps, logger: logger.With("component", "agent_handler")}, nil
}

// Root handles GET /.
func (h *AgentHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ServiceInfo{
		Service: ServiceName,
		Version: h.deps.Version,
		Status:  "running",
	})
}

// Health handles GET /health.
func (h *AgentHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:           "healthy",
		AgentInitialized: h.deps.Agent.Initialized(),
	})
}

// Reset handles POST /agent/reset.
func (h *AgentHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.deps.Agent.Reset()
	h.logger.InfoContext(r.Context(), "agent reset requested", "caller", shared.GetCaller(r.Context()))
	shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Agent reset; it will be recreated on the next request",
	})
}

// SendCredentials handles POST /agent/send-credentials. The delivery runs in
// the background; the response only confirms it was queued.
func (h *AgentHandler) SendCredentials(w http.ResponseWriter, r *http.Request) {
	var req SendCredentialsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	log := h.logger.With("bgv_request_id", req.BGVRequestID)

	taskID, claimed := h.deps.Dedupe.Claim(req.BGVRequestID, uuid.New())
	if !claimed {
		log.InfoContext(ctx, "duplicate credential submission ignored", "task_id", taskID)
		shared.RespondWithJSON(w, r, http.StatusAccepted, SendCredentialsResponse{
			Success:    true,
			Message:    "Credential delivery already queued",
			TaskID:     taskID,
			AuditLogID: audit.EntryID(req.AuditLogID),
			Duplicate:  true,
		})
		return
	}

	auditLogID, err := h.queueCredentials(ctx, taskID, req)
	if err != nil {
		h.deps.Dedupe.Release(req.BGVRequestID)
		respondWithMappedError(w, r, err)
		return
	}

	log.InfoContext(ctx, "credential delivery queued",
		"task_id", taskID,
		"audit_log_id", auditLogID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SendCredentialsResponse{
		Success:    true,
		Message:    "Credential delivery queued",
		TaskID:     taskID,
		AuditLogID: auditLogID,
	})
}

func (h *AgentHandler) queueCredentials(ctx context.Context, taskID uuid.UUID, req SendCredentialsRequest) (audit.EntryID, error) {
	bgv := &domain.BGVRequest{
		ID:              req.BGVRequestID,
		CandidateName:   req.CandidateName,
		CandidateEmail:  req.CandidateEmail,
		Role:            req.Role,
		TotalExperience: req.TotalExperience,
		Status:          domain.BGVStatusPendingAnalysis,
	}
	if err := h.deps.Requests.Upsert(ctx, bgv); err != nil {
		return 0, err
	}

	auditLogID := audit.EntryID(req.AuditLogID)
	if auditLogID == 0 {
		entry := &audit.Entry{
			BGVRequestID: req.BGVRequestID,
			Action:       audit.ActionCredentialsDelivery,
			Message:      "credentials queued for delivery",
			Metadata: map[string]any{
				audit.KeyCandidateEmail: req.CandidateEmail,
				audit.KeyDelivered:      false,
			},
		}
		if err := h.deps.Audit.Create(ctx, entry); err != nil {
			return 0, err
		}
		auditLogID = entry.ID
	}

	event, err := events.NewTaskRequestEvent(task.TaskTypeCredentialDelivery, task.CredentialPayload{
		BGVRequestID:   req.BGVRequestID,
		CandidateEmail: req.CandidateEmail,
		CandidateName:  req.CandidateName,
		TempPassword:   req.TempPassword,
		AuditLogID:     auditLogID,
	}, events.WithEventID(taskID))
	if err != nil {
		return 0, err
	}

	if err := h.deps.Emitter.EmitEvent(ctx, event); err != nil {
		return 0, err
	}
	return auditLogID, nil
}

// SendReminder handles POST /agent/send-reminder.
func (h *AgentHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	var req SendReminderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Trigger == "" {
		req.Trigger = task.TriggerManual
	}
	ctx := r.Context()

	bgv, err := h.deps.Requests.Get(ctx, req.BGVRequestID)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	resp, err := h.deps.Reminders.Dispatch(ctx, bgv, req.Trigger)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to send reminder", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SendReminderResponse{
		Success:      true,
		BGVRequestID: req.BGVRequestID,
		Trigger:      req.Trigger,
		EmailsSent:   resp.EmailsSent,
		Output:       resp.Output,
	})
}
