package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/audit"
)

// SendCredentialsRequest is the body of POST /agent/send-credentials.
type SendCredentialsRequest struct {
	BGVRequestID    int64  `json:"bgv_request_id"    validate:"required,gt=0"`
	CandidateEmail  string `json:"candidate_email"   validate:"required,email"`
	CandidateName   string `json:"candidate_name"    validate:"required"`
	TempPassword    string `json:"temp_password"     validate:"required"`
	AuditLogID      int64  `json:"audit_log_id"      validate:"omitempty,gt=0"`
	Role            string `json:"role"`
	TotalExperience int    `json:"total_experience"  validate:"gte=0"`
}

// SendCredentialsResponse acknowledges a queued delivery.
type SendCredentialsResponse struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	TaskID     uuid.UUID     `json:"task_id"`
	AuditLogID audit.EntryID `json:"audit_log_id"`
	Duplicate  bool          `json:"duplicate,omitempty"`
}

// SendReminderRequest is the body of POST /agent/send-reminder.
type SendReminderRequest struct {
	BGVRequestID int64  `json:"bgv_request_id" validate:"required,gt=0"`
	Trigger      string `json:"trigger"        validate:"omitempty,oneof=manual automated"`
}

// SendReminderResponse reports a sent reminder.
type SendReminderResponse struct {
	Success      bool   `json:"success"`
	BGVRequestID int64  `json:"bgv_request_id"`
	Trigger      string `json:"trigger"`
	EmailsSent   int    `json:"emails_sent"`
	Output       string `json:"output"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	AgentInitialized bool   `json:"agent_initialized"`
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AgentLogResponse is one audit entry as returned by the API.
type AgentLogResponse struct {
	ID           audit.EntryID  `json:"id"`
	BGVRequestID int64          `json:"bgv_request_id"`
	Action       string         `json:"action"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AgentLogsResponse is the body of GET /api/bgv-requests/{id}/agent-logs.
type AgentLogsResponse struct {
	BGVRequestID int64              `json:"bgv_request_id"`
	Logs         []AgentLogResponse `json:"logs"`
}

func toAgentLogResponse(e *audit.Entry) AgentLogResponse {
	return AgentLogResponse{
		ID:           e.ID,
		BGVRequestID: e.BGVRequestID,
		Action:       string(e.Action),
		Message:      e.Message,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}
