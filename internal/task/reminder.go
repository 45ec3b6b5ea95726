package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/clock"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/metrics"
)

// Reminder triggers
const (
	TriggerManual    = "manual"
	TriggerAutomated = "automated"
)

// ReminderDispatcher sends one document reminder for a BGV request.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, req *domain.BGVRequest, trigger string) (agent.Response, error)
}

// AgentReminder dispatches reminders through the agent and records each
// successful one as a reminder_sent audit entry.
type AgentReminder struct {
	callers  CallerSource
	invoker  AgentInvoker
	audit    audit.Store
	loginURL string
	clock    clock.Clock
	logger   *slog.Logger
}

// NewAgentReminder creates an AgentReminder.
func NewAgentReminder(
	callers CallerSource,
	invoker AgentInvoker,
	auditStore audit.Store,
	loginURL string,
	clk clock.Clock,
	logger *slog.Logger,
) (*AgentReminder, error) {
	if callers == nil {
		return nil, ErrNilCallerSource
	}
	if invoker == nil {
		return nil, ErrNilInvoker
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if clk == nil {
		clk = clock.New()
	}
	return &AgentReminder{
		callers:  callers,
		invoker:  invoker,
		audit:    auditStore,
		loginURL: loginURL,
		clock:    clk,
		logger:   logger.With("component", "agent_reminder"),
	}, nil
}

// Dispatch sends the reminder and records it.
func (r *AgentReminder) Dispatch(ctx context.Context, req *domain.BGVRequest, trigger string) (agent.Response, error) {
	days := req.DaysPending(r.clock.Now())

	caller, err := r.callers.Get(ctx)
	if err != nil {
		metrics.Reminders.WithLabelValues(trigger, "failed").Inc()
		return agent.Response{}, fmt.Errorf("failed to get agent: %w", err)
	}

	resp, err := r.invoker.Invoke(ctx, caller, agent.Request{
		Kind:         agent.KindReminder,
		BGVRequestID: req.ID,
		Prompt: agent.ReminderPrompt(agent.ReminderData{
			BGVRequestID: req.ID,
			Trigger:      trigger,
			DaysPending:  days,
			LoginURL:     r.loginURL,
		}),
	})
	if err != nil {
		metrics.Reminders.WithLabelValues(trigger, "failed").Inc()
		return agent.Response{}, err
	}

	entry := &audit.Entry{
		BGVRequestID: req.ID,
		Action:       audit.ActionReminderSent,
		Message:      fmt.Sprintf("Document reminder sent after %d day(s)", days),
		Metadata: map[string]any{
			audit.KeyTrigger:     trigger,
			audit.KeyDaysPending: days,
		},
		CreatedAt: r.clock.Now().UTC(),
	}
	if err := r.audit.Create(ctx, entry); err != nil {
		// The reminder went out; the next sweep may send another one.
		r.logger.ErrorContext(ctx, "failed to record reminder",
			"bgv_request_id", req.ID,
			"error", err)
	}

	metrics.Reminders.WithLabelValues(trigger, "sent").Inc()
	r.logger.InfoContext(ctx, "reminder sent",
		"bgv_request_id", req.ID,
		"trigger", trigger,
		"days_pending", days)
	return resp, nil
}
