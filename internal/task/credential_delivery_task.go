package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/audit"
)

// DeliveryChannelAgent is recorded on audit entries delivered by the agent.
const DeliveryChannelAgent = "agent_service"

var (
	// ErrNilEscalator is returned when a component is built without an escalator.
	ErrNilEscalator = errors.New("escalator cannot be nil")

	// ErrNilInvoker is returned when a component is built without an invoker.
	ErrNilInvoker = errors.New("invoker cannot be nil")

	// ErrNilCallerSource is returned when a component has no agent provider.
	ErrNilCallerSource = errors.New("caller source cannot be nil")

	// ErrNoEmailSent is returned when the agent finished without emailing
	// the candidate.
	ErrNoEmailSent = errors.New("agent finished without sending the candidate email")
)

// CallerSource hands out the current agent.
type CallerSource interface {
	Get(ctx context.Context) (agent.Caller, error)
}

// AgentInvoker runs one agent request with rate limiting and quota retries.
type AgentInvoker interface {
	Invoke(ctx context.Context, caller agent.Caller, req agent.Request) (agent.Response, error)
}

// CredentialPayload is the work item payload of a credential delivery.
type CredentialPayload struct {
	BGVRequestID   int64         `json:"bgv_request_id"`
	CandidateEmail string        `json:"candidate_email"`
	CandidateName  string        `json:"candidate_name"`
	TempPassword   string        `json:"temp_password"`
	AuditLogID     audit.EntryID `json:"audit_log_id"`
	MaxRetries     *int          `json:"max_retries,omitempty"`
	BaseDelay      string        `json:"base_delay,omitempty"`
}

// Validate checks the payload fields.
func (p *CredentialPayload) Validate() error {
	switch {
	case p.BGVRequestID <= 0:
		return fmt.Errorf("%w: bgv_request_id must be positive", ErrInvalidWorkItem)
	case p.CandidateName == "":
		return fmt.Errorf("%w: candidate_name is required", ErrInvalidWorkItem)
	case p.TempPassword == "":
		return fmt.Errorf("%w: temp_password is required", ErrInvalidWorkItem)
	case p.AuditLogID <= 0:
		return fmt.Errorf("%w: audit_log_id is required", ErrInvalidWorkItem)
	}
	if _, err := mail.ParseAddress(p.CandidateEmail); err != nil {
		return fmt.Errorf("%w: candidate_email is invalid", ErrInvalidWorkItem)
	}
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries cannot be negative", ErrInvalidWorkItem)
	}
	if p.BaseDelay != "" {
		if d, err := time.ParseDuration(p.BaseDelay); err != nil || d < 0 {
			return fmt.Errorf("%w: base_delay must be a non-negative duration", ErrInvalidWorkItem)
		}
	}
	return nil
}

// CredentialDeliveryConfig holds the retry defaults for credential delivery.
type CredentialDeliveryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	LoginURL   string
}

// CredentialDelivery asks the agent to email a candidate their login
// credentials together with the document request. Failed deliveries are
// retried and finally escalated by the Escalator.
type CredentialDelivery struct {
	escalator *Escalator
	callers   CallerSource
	invoker   AgentInvoker
	config    CredentialDeliveryConfig
	logger    *slog.Logger
}

// NewCredentialDelivery creates a CredentialDelivery.
func NewCredentialDelivery(
	escalator *Escalator,
	callers CallerSource,
	invoker AgentInvoker,
	config CredentialDeliveryConfig,
	logger *slog.Logger,
) (*CredentialDelivery, error) {
	if escalator == nil {
		return nil, ErrNilEscalator
	}
	if callers == nil {
		return nil, ErrNilCallerSource
	}
	if invoker == nil {
		return nil, ErrNilInvoker
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &CredentialDelivery{
		escalator: escalator,
		callers:   callers,
		invoker:   invoker,
		config:    config,
		logger:    logger.With("task_type", TaskTypeCredentialDelivery),
	}, nil
}

// Submit queues a delivery. A nil id lets the escalator pick one.
func (d *CredentialDelivery) Submit(ctx context.Context, id uuid.UUID, p CredentialPayload) (uuid.UUID, error) {
	if err := p.Validate(); err != nil {
		return uuid.Nil, err
	}

	maxRetries := d.config.MaxRetries
	if p.MaxRetries != nil {
		maxRetries = *p.MaxRetries
	}
	baseDelay := d.config.BaseDelay
	if p.BaseDelay != "" {
		baseDelay, _ = time.ParseDuration(p.BaseDelay)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode credential payload: %w", err)
	}

	item := &WorkItem{
		ID:         id,
		Kind:       TaskTypeCredentialDelivery,
		Payload:    raw,
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		AuditLogID: p.AuditLogID,
	}
	t, err := d.escalator.Submit(ctx, item, d.Work)
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID(), nil
}

// Work performs one delivery attempt.
func (d *CredentialDelivery) Work(ctx context.Context, item *WorkItem) error {
	var p CredentialPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode credential payload: %w", err)
	}

	caller, err := d.callers.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}

	resp, err := d.invoker.Invoke(ctx, caller, agent.Request{
		Kind:         agent.KindOnboarding,
		BGVRequestID: p.BGVRequestID,
		Prompt: agent.OnboardingPrompt(agent.OnboardingData{
			BGVRequestID:   p.BGVRequestID,
			CandidateName:  p.CandidateName,
			CandidateEmail: p.CandidateEmail,
			TempPassword:   p.TempPassword,
			LoginURL:       d.config.LoginURL,
		}),
	})
	if err != nil {
		return err
	}
	if resp.EmailsSent == 0 {
		return ErrNoEmailSent
	}

	d.logger.InfoContext(ctx, "credentials delivered",
		"work_item_id", item.ID,
		"bgv_request_id", p.BGVRequestID,
		"tool_calls", resp.ToolCalls)
	return nil
}

// Factory rebuilds persisted credential deliveries for TaskRunner.Recover.
func (d *CredentialDelivery) Factory() TaskFactory {
	return func(record Task) (Task, error) {
		return d.escalator.Restore(record, d.Work)
	}
}
