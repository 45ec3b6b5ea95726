package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/platform/memory"
	"github.com/traqcheck/bgv-agent/internal/platform/smtp"
)

type recordingMailer struct {
	sent []smtp.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg smtp.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "<msg-1@test>", nil
}

func newToolbox(t *testing.T, mailer agent.Mailer) (*agent.Toolbox, *memory.BGVRequestStore, *memory.AuditStore) {
	t.Helper()

	requests := memory.NewBGVRequestStore()
	auditStore := memory.NewAuditStore()

	req, err := domain.NewBGVRequest(12, "Asha Rao", "asha@example.com")
	require.NoError(t, err)
	req.Role = "Director of Engineering"
	req.TotalExperience = 11
	req.CreatedAt = time.Now().UTC().Add(-80 * time.Hour)
	require.NoError(t, requests.Upsert(context.Background(), req))

	return agent.NewToolbox(requests, auditStore, mailer, nil), requests, auditStore
}

func TestToolboxSpecs(t *testing.T) {
	t.Parallel()

	tb, _, _ := newToolbox(t, nil)
	var names []string
	for _, s := range tb.Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		agent.ToolFetchBGVRequest,
		agent.ToolAnalyzeProfile,
		agent.ToolSendEmail,
		agent.ToolLogAction,
		agent.ToolUpdateBGVStatus,
	}, names)
}

func TestToolboxFetchAndAnalyze(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tb, _, auditStore := newToolbox(t, nil)

	require.NoError(t, auditStore.Create(ctx, &audit.Entry{BGVRequestID: 12, Action: audit.ActionRequestSent, Message: "sent"}))

	res, err := tb.Execute(ctx, agent.ToolFetchBGVRequest, map[string]any{"bgv_request_id": float64(12)})
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
	data := res["data"].(map[string]any)
	assert.Equal(t, "Asha Rao", data["candidate_name"])
	assert.Equal(t, 3, data["days_pending"])
	assert.Len(t, data["agent_logs"], 1)

	res, err = tb.Execute(ctx, agent.ToolAnalyzeProfile, map[string]any{"bgv_request_id": "12"})
	require.NoError(t, err)
	assert.Equal(t, "senior", res["seniority"])
	assert.Equal(t, true, res["is_leadership"])

	res, err = tb.Execute(ctx, agent.ToolFetchBGVRequest, map[string]any{"bgv_request_id": float64(99)})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
	assert.NotEmpty(t, res["error"])
}

func TestToolboxSendEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mailer := &recordingMailer{}
	tb, _, _ := newToolbox(t, mailer)
	args := map[string]any{"to_email": "asha@example.com", "subject": "Welcome", "body_html": "<p>Hi</p>"}

	res, err := tb.Execute(ctx, agent.ToolSendEmail, args)
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "<msg-1@test>", res["message_id"])
	require.Len(t, mailer.sent, 1)
	assert.True(t, mailer.sent[0].HTML)

	mailer.err = errors.New("relay down")
	res, err = tb.Execute(ctx, agent.ToolSendEmail, args)
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])

	noMail, _, _ := newToolbox(t, nil)
	res, err = noMail.Execute(ctx, agent.ToolSendEmail, args)
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])

	_, err = tb.Execute(ctx, agent.ToolSendEmail, map[string]any{"to_email": "asha@example.com"})
	assert.ErrorIs(t, err, agent.ErrInvalidToolArgs)
}

func TestToolboxLogAndStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tb, requests, auditStore := newToolbox(t, nil)

	res, err := tb.Execute(ctx, agent.ToolLogAction, map[string]any{
		"bgv_request_id": float64(12),
		"action":         "request_sent",
		"message":        "Onboarding email sent",
	})
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])

	entries, err := auditStore.Query(ctx, audit.Filter{BGVRequestID: 12})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionRequestSent, entries[0].Action)

	res, err = tb.Execute(ctx, agent.ToolLogAction, map[string]any{
		"bgv_request_id": float64(12),
		"action":         "deleted",
		"message":        "x",
	})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])

	res, err = tb.Execute(ctx, agent.ToolUpdateBGVStatus, map[string]any{"bgv_request_id": float64(12), "status": "documents_requested"})
	require.NoError(t, err)
	assert.Equal(t, true, res["success"])
	req, err := requests.Get(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, domain.BGVStatusDocumentsRequested, req.Status)

	res, err = tb.Execute(ctx, agent.ToolUpdateBGVStatus, map[string]any{"bgv_request_id": float64(12), "status": "archived"})
	require.NoError(t, err)
	assert.Equal(t, false, res["success"])
}

func TestToolboxUnknownTool(t *testing.T) {
	t.Parallel()

	tb, _, _ := newToolbox(t, nil)
	_, err := tb.Execute(context.Background(), "delete_everything", nil)
	assert.ErrorIs(t, err, agent.ErrUnknownTool)
}

func TestPrompts(t *testing.T) {
	t.Parallel()

	loginURL := agent.LoginURL("https://app.traqcheck.test/")
	assert.Equal(t, "https://app.traqcheck.test/login", loginURL)
	assert.Equal(t, "http://localhost:3000/login", agent.LoginURL(""))

	p := agent.OnboardingPrompt(agent.OnboardingData{
		BGVRequestID:   12,
		CandidateName:  "Asha Rao",
		CandidateEmail: "asha@example.com",
		TempPassword:   "Tmp#Pass-77",
		LoginURL:       loginURL,
	})
	assert.Contains(t, p, "BGV Request ID: 12")
	assert.Contains(t, p, "Temporary Password: Tmp#Pass-77")
	assert.Contains(t, p, "Login URL: https://app.traqcheck.test/login")

	r := agent.ReminderPrompt(agent.ReminderData{BGVRequestID: 12, Trigger: "automated", DaysPending: 4, LoginURL: loginURL})
	assert.Contains(t, r, "Trigger: automated")
	assert.Contains(t, r, "Days pending: 4")

	assert.Contains(t, agent.SystemInstruction(loginURL), "TraqCheck")
}
