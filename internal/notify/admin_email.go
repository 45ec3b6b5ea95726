package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/platform/smtp"
)

// Mailer sends one email and returns its message id.
type Mailer interface {
	Send(ctx context.Context, msg smtp.Message) (string, error)
}

var adminBody = template.Must(template.New("admin").Parse(`ALERT: Automatic credential delivery failed after all retry attempts.

BGV Request ID: {{.BGVRequestID}}
Candidate: {{.CandidateName}}
Email: {{.CandidateEmail}}
Audit log: {{.AuditLogID}}
Work item: {{.WorkItemID}}
Attempts: {{.Attempts}}

Error: {{.Error}}

MANUAL ACTION REQUIRED:
Please manually send the following credentials to the candidate:

---
Subject: Your Login Credentials for Background Verification

Hi {{.CandidateName}},

Please use the following credentials to login and upload your documents:

Login URL: {{.LoginURL}}
Email: {{.CandidateEmail}}
Temporary Password: {{.TempPassword}}

(Please change your password after first login)

Documents Required:
{{range .Documents}}- {{.}}
{{end}}
Thank you!
---

This is an automated alert from TraqCheck BGV System.
`))

// AdminEmail emails the administrator with the credentials the candidate
// never received.
type AdminEmail struct {
	mailer   Mailer
	to       string
	loginURL string
	logger   *slog.Logger
}

// NewAdminEmail creates an AdminEmail notifier.
func NewAdminEmail(mailer Mailer, adminEmail, frontendURL string, logger *slog.Logger) (*AdminEmail, error) {
	if mailer == nil {
		return nil, errors.New("mailer cannot be nil")
	}
	if adminEmail == "" {
		return nil, errors.New("admin email not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminEmail{
		mailer:   mailer,
		to:       adminEmail,
		loginURL: strings.TrimRight(frontendURL, "/") + "/login",
		logger:   logger.With("component", "admin_email_notifier"),
	}, nil
}

// Subject returns the alert subject for a BGV request.
func Subject(bgvRequestID int64) string {
	return fmt.Sprintf("URGENT: Failed to Send Candidate Credentials - BGV #%d", bgvRequestID)
}

// Notify sends the alert.
func (n *AdminEmail) Notify(ctx context.Context, incident Incident) error {
	d := decodeDetails(incident.Payload)

	var body bytes.Buffer
	err := adminBody.Execute(&body, map[string]any{
		"BGVRequestID":   d.BGVRequestID,
		"CandidateName":  d.CandidateName,
		"CandidateEmail": d.CandidateEmail,
		"TempPassword":   d.TempPassword,
		"AuditLogID":     incident.AuditLogID,
		"WorkItemID":     incident.WorkItemID,
		"Attempts":       incident.Attempts,
		"Error":          errorText(incident.LastError),
		"LoginURL":       n.loginURL,
		"Documents":      domain.RequiredDocuments,
	})
	if err != nil {
		return fmt.Errorf("failed to render admin alert: %w", err)
	}

	id, err := n.mailer.Send(ctx, smtp.Message{
		To:      []string{n.to},
		Subject: Subject(d.BGVRequestID),
		Body:    body.String(),
		Headers: map[string]string{"X-Priority": "1", "Importance": "high"},
	})
	if err != nil {
		return fmt.Errorf("failed to send admin alert: %w", err)
	}

	n.logger.InfoContext(ctx, "admin alert sent",
		"message_id", id,
		"bgv_request_id", d.BGVRequestID,
		"audit_log_id", incident.AuditLogID)
	return nil
}
