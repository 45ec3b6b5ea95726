package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/platform/smtp"
	"github.com/traqcheck/bgv-agent/internal/redact"
	"github.com/traqcheck/bgv-agent/internal/store"
)

// Tool names
const (
	ToolFetchBGVRequest  = "fetch_bgv_request"
	ToolAnalyzeProfile   = "analyze_candidate_profile"
	ToolSendEmail        = "send_email_to_candidate"
	ToolLogAction        = "log_agent_action"
	ToolUpdateBGVStatus  = "update_bgv_status"
	recentLogsForContext = 10
)

// Parameter types understood by ToolParam.
const (
	ParamInteger = "integer"
	ParamString  = "string"
)

// ToolParam describes one tool argument.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Enum        []string
	Required    bool
}

// ToolSpec declares a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Mailer sends one email and returns its message id.
type Mailer interface {
	Send(ctx context.Context, msg smtp.Message) (string, error)
}

var loggableActions = []string{
	string(audit.ActionAnalysis),
	string(audit.ActionRequestSent),
	string(audit.ActionReminderSent),
}

var bgvStatuses = []string{
	string(domain.BGVStatusPendingAnalysis),
	string(domain.BGVStatusDocumentsRequested),
	string(domain.BGVStatusDocumentsSubmitted),
	string(domain.BGVStatusCompleted),
}

// Toolbox executes the agent's tools against the service's stores.
type Toolbox struct {
	requests store.BGVRequestStore
	audit    audit.Store
	mailer   Mailer
	now      func() time.Time
	logger   *slog.Logger
}

// NewToolbox creates a Toolbox. A nil mailer makes send_email_to_candidate
// report failure to the model.
func NewToolbox(requests store.BGVRequestStore, auditStore audit.Store, mailer Mailer, logger *slog.Logger) *Toolbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbox{
		requests: requests,
		audit:    auditStore,
		mailer:   mailer,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "agent_toolbox"),
	}
}

// Specs returns the tool declarations.
func (t *Toolbox) Specs() []ToolSpec {
	id := ToolParam{Name: "bgv_request_id", Type: ParamInteger, Description: "The BGV request ID", Required: true}
	return []ToolSpec{
		{
			Name: ToolFetchBGVRequest,
			Description: "Fetch the BGV request with candidate name, email, role, total experience, " +
				"status, days pending and the most recent agent log entries. Use this before taking any action.",
			Params: []ToolParam{id},
		},
		{
			Name: ToolAnalyzeProfile,
			Description: "Analyze the candidate's role and total experience to determine seniority " +
				"(junior/mid-level/senior), leadership and the communication tone to use.",
			Params: []ToolParam{id},
		},
		{
			Name:        ToolSendEmail,
			Description: "Send a professional HTML email to the candidate. The body must be well-formatted HTML.",
			Params: []ToolParam{
				{Name: "to_email", Type: ParamString, Description: "Recipient email address", Required: true},
				{Name: "subject", Type: ParamString, Description: "Email subject", Required: true},
				{Name: "body_html", Type: ParamString, Description: "HTML email body", Required: true},
			},
		},
		{
			Name:        ToolLogAction,
			Description: "Record an agent action in the audit trail.",
			Params: []ToolParam{
				id,
				{Name: "action", Type: ParamString, Description: "The action performed", Enum: loggableActions, Required: true},
				{Name: "message", Type: ParamString, Description: "Short description without secrets", Required: true},
			},
		},
		{
			Name:        ToolUpdateBGVStatus,
			Description: "Move the BGV request to a new workflow status.",
			Params: []ToolParam{
				id,
				{Name: "status", Type: ParamString, Description: "The new status", Enum: bgvStatuses, Required: true},
			},
		},
	}
}

// Execute runs a tool. Tool failures are reported to the model in the result
// map with success=false; an error is returned only for unknown tools or
// malformed arguments.
func (t *Toolbox) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	var (
		result map[string]any
		err    error
	)
	switch name {
	case ToolFetchBGVRequest:
		result, err = t.fetchBGVRequest(ctx, args)
	case ToolAnalyzeProfile:
		result, err = t.analyzeProfile(ctx, args)
	case ToolSendEmail:
		result, err = t.sendEmail(ctx, args)
	case ToolLogAction:
		result, err = t.logAction(ctx, args)
	case ToolUpdateBGVStatus:
		result, err = t.updateStatus(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if errors.Is(err, ErrInvalidToolArgs) {
		return nil, err
	}
	if err != nil {
		t.logger.WarnContext(ctx, "agent tool failed",
			"tool", name,
			"error", redact.Error(err))
		return map[string]any{"success": false, "error": redact.Error(err)}, nil
	}

	result["success"] = true
	return result, nil
}

func (t *Toolbox) fetchBGVRequest(ctx context.Context, args map[string]any) (map[string]any, error) {
	id, err := IntArg(args, "bgv_request_id")
	if err != nil {
		return nil, err
	}

	req, err := t.requests.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bgv request %d: %w", id, err)
	}

	entries, err := t.audit.Query(ctx, audit.Filter{BGVRequestID: id, Limit: recentLogsForContext})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent logs: %w", err)
	}
	logs := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, map[string]any{
			"action":     string(e.Action),
			"message":    e.Message,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return map[string]any{
		"data": map[string]any{
			"id":               req.ID,
			"candidate_name":   req.CandidateName,
			"candidate_email":  req.CandidateEmail,
			"role":             req.Role,
			"total_experience": req.TotalExperience,
			"status":           string(req.Status),
			"created_at":       req.CreatedAt.UTC().Format(time.RFC3339),
			"days_pending":     req.DaysPending(t.now()),
			"agent_logs":       logs,
		},
	}, nil
}

func (t *Toolbox) analyzeProfile(ctx context.Context, args map[string]any) (map[string]any, error) {
	id, err := IntArg(args, "bgv_request_id")
	if err != nil {
		return nil, err
	}

	req, err := t.requests.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bgv request %d: %w", id, err)
	}

	a := domain.AnalyzeProfile(req.TotalExperience, req.Role)
	t.logger.InfoContext(ctx, "profile analyzed",
		"bgv_request_id", id,
		"seniority", a.Seniority)

	return map[string]any{
		"seniority":          string(a.Seniority),
		"tone":               a.Tone,
		"total_experience":   a.TotalExperience,
		"role":               a.Role,
		"is_leadership":      a.IsLeadership,
		"required_documents": a.RequiredDocuments,
		"recommendation":     a.Recommendation,
	}, nil
}

func (t *Toolbox) sendEmail(ctx context.Context, args map[string]any) (map[string]any, error) {
	to, err := StringArg(args, "to_email")
	if err != nil {
		return nil, err
	}
	subject, err := StringArg(args, "subject")
	if err != nil {
		return nil, err
	}
	body, err := StringArg(args, "body_html")
	if err != nil {
		return nil, err
	}
	if t.mailer == nil {
		return nil, errors.New("email delivery is not configured")
	}

	id, err := t.mailer.Send(ctx, smtp.Message{
		To:      []string{to},
		Subject: subject,
		Body:    body,
		HTML:    true,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"message_id": id, "to_email": to}, nil
}

func (t *Toolbox) logAction(ctx context.Context, args map[string]any) (map[string]any, error) {
	id, err := IntArg(args, "bgv_request_id")
	if err != nil {
		return nil, err
	}
	action, err := StringArg(args, "action")
	if err != nil {
		return nil, err
	}
	message, err := StringArg(args, "message")
	if err != nil {
		return nil, err
	}
	if !contains(loggableActions, action) {
		return nil, fmt.Errorf("invalid action %q, must be one of: %s", action, strings.Join(loggableActions, ", "))
	}

	entry := &audit.Entry{
		BGVRequestID: id,
		Action:       audit.Action(action),
		Message:      redact.Secrets(message),
		Metadata:     map[string]any{"source": "agent"},
	}
	if err := t.audit.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create agent log: %w", err)
	}

	return map[string]any{"log_id": int64(entry.ID), "action": action}, nil
}

func (t *Toolbox) updateStatus(ctx context.Context, args map[string]any) (map[string]any, error) {
	id, err := IntArg(args, "bgv_request_id")
	if err != nil {
		return nil, err
	}
	status, err := StringArg(args, "status")
	if err != nil {
		return nil, err
	}
	if !domain.IsValidBGVStatus(domain.BGVStatus(status)) {
		return nil, fmt.Errorf("invalid status %q, must be one of: %s", status, strings.Join(bgvStatuses, ", "))
	}

	if err := t.requests.UpdateStatus(ctx, id, domain.BGVStatus(status)); err != nil {
		return nil, fmt.Errorf("failed to update bgv status: %w", err)
	}
	t.logger.InfoContext(ctx, "bgv status updated", "bgv_request_id", id, "status", status)

	return map[string]any{"bgv_request_id": id, "new_status": status}, nil
}

// IntArg reads an integer argument. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidToolArgs, key)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		return n.Int64()
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidToolArgs, key)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidToolArgs, key)
	}
}

// StringArg reads a non-empty string argument.
func StringArg(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidToolArgs, key)
	}
	return s, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
