// Package notify delivers the out-of-band alert raised when a work item
// exhausts its retries.
package notify

import (
	"context"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/redact"
)

// Incident carries everything an operator needs to finish the work by hand.
type Incident struct {
	WorkItemID uuid.UUID
	Kind       string
	Payload    json.RawMessage
	LastError  error
	AuditLogID audit.EntryID
	Attempts   int
}

// Notifier delivers incidents. Implementations should be durable on a best
// effort basis; callers do not retry a failed Notify.
type Notifier interface {
	Notify(ctx context.Context, incident Incident) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, incident Incident) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, incident Incident) error {
	return f(ctx, incident)
}

// credentialDetails is the subset of a credential payload the alert needs.
type credentialDetails struct {
	BGVRequestID   int64  `json:"bgv_request_id"`
	CandidateEmail string `json:"candidate_email"`
	CandidateName  string `json:"candidate_name"`
	TempPassword   string `json:"temp_password"`
}

func decodeDetails(payload json.RawMessage) credentialDetails {
	var d credentialDetails
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &d)
	}
	return d
}

// LogNotifier writes incidents to the error log. It is used when no mail
// relay is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

// Notify logs the incident without the temporary password.
func (n *LogNotifier) Notify(ctx context.Context, incident Incident) error {
	d := decodeDetails(incident.Payload)
	n.logger.ErrorContext(ctx, "MANUAL ACTION REQUIRED: work item escalated",
		"work_item_id", incident.WorkItemID,
		"kind", incident.Kind,
		"bgv_request_id", d.BGVRequestID,
		"audit_log_id", incident.AuditLogID,
		"attempts", incident.Attempts,
		"error", redact.Values(errorText(incident.LastError), d.TempPassword))
	return nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
