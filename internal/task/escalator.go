package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/clock"
	"github.com/traqcheck/bgv-agent/internal/metrics"
	"github.com/traqcheck/bgv-agent/internal/notify"
	"github.com/traqcheck/bgv-agent/internal/redact"
	"github.com/traqcheck/bgv-agent/internal/retry"
	"github.com/traqcheck/bgv-agent/internal/store"
)

const tracerName = "github.com/traqcheck/bgv-agent/internal/task"

var (
	// ErrRetryScheduled marks an attempt that failed and was rescheduled.
	ErrRetryScheduled = errors.New("retry scheduled")

	// ErrEscalated marks a work item that exhausted its retries.
	ErrEscalated = errors.New("work item escalated")

	// ErrInvalidWorkItem is returned by Submit for malformed items.
	ErrInvalidWorkItem = errors.New("invalid work item")
)

// WorkState is the lifecycle state of a WorkItem.
type WorkState string

// Work item states
const (
	WorkStatePending   WorkState = "pending"
	WorkStateInFlight  WorkState = "in_flight"
	WorkStateRetrying  WorkState = "retrying"
	WorkStateSucceeded WorkState = "succeeded"
	WorkStateEscalated WorkState = "escalated"
)

// Composition selects how outer retries combine with the invoker's inner
// quota retries.
type Composition string

const (
	// CompositionAdditive always waits the outer backoff delay.
	CompositionAdditive Composition = "additive"

	// CompositionQuotaAware re-dispatches immediately when the inner loop
	// already backed off on quota errors.
	CompositionQuotaAware Composition = "quota_aware"
)

// WorkItem is one unit of asynchronous work driven by the Escalator.
type WorkItem struct {
	ID         uuid.UUID
	Kind       string
	Payload    json.RawMessage
	RetryCount int
	MaxRetries int
	BaseDelay  time.Duration
	AuditLogID audit.EntryID
	State      WorkState
	LastError  error
}

// Validate checks the item before it is submitted.
func (w *WorkItem) Validate() error {
	switch {
	case w.Kind == "":
		return fmt.Errorf("%w: kind is required", ErrInvalidWorkItem)
	case w.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries cannot be negative", ErrInvalidWorkItem)
	case w.RetryCount < 0 || w.RetryCount > w.MaxRetries:
		return fmt.Errorf("%w: retry_count out of range", ErrInvalidWorkItem)
	case w.BaseDelay < 0:
		return fmt.Errorf("%w: base_delay cannot be negative", ErrInvalidWorkItem)
	case w.AuditLogID <= 0:
		return fmt.Errorf("%w: audit_log_id is required", ErrInvalidWorkItem)
	}
	return nil
}

// Attempts is the number of dispatches made so far, counting the current one.
func (w *WorkItem) Attempts() int {
	return w.RetryCount + 1
}

type workItemRecord struct {
	Kind       string          `json:"kind"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	BaseDelay  time.Duration   `json:"base_delay"`
	AuditLogID audit.EntryID   `json:"audit_log_id"`
	State      WorkState       `json:"state"`
	LastError  string          `json:"last_error,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// Work performs one dispatch of a work item.
type Work func(ctx context.Context, item *WorkItem) error

// EscalatorHooks observe work item transitions. Nil hooks are skipped.
type EscalatorHooks struct {
	OnDispatch func(item *WorkItem)
	OnRetry    func(item *WorkItem, delay time.Duration, err error)
	OnSuccess  func(item *WorkItem)
	OnEscalate func(item *WorkItem, notified bool, err error)
}

// EscalatorConfig configures an Escalator.
type EscalatorConfig struct {
	Composition Composition

	// DeliveryChannel is recorded on the audit entry after a success.
	DeliveryChannel string
}

// Escalator retries failed work on the Scheduler with growing delays and,
// once the retries are spent, notifies an administrator and amends the audit
// entry to its terminal state.
type Escalator struct {
	scheduler Scheduler
	amender   *audit.Amender
	notifier  notify.Notifier
	config    EscalatorConfig
	hooks     EscalatorHooks
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
}

// EscalatorOption customizes an Escalator.
type EscalatorOption func(*Escalator)

// WithHooks installs transition hooks.
func WithHooks(h EscalatorHooks) EscalatorOption {
	return func(e *Escalator) {
		e.hooks = h
	}
}

// WithEscalatorClock sets the clock used for audit timestamps.
func WithEscalatorClock(c clock.Clock) EscalatorOption {
	return func(e *Escalator) {
		e.clock = c
	}
}

// NewEscalator creates an Escalator.
func NewEscalator(
	scheduler Scheduler,
	amender *audit.Amender,
	notifier notify.Notifier,
	config EscalatorConfig,
	logger *slog.Logger,
	opts ...EscalatorOption,
) (*Escalator, error) {
	if scheduler == nil {
		return nil, errors.New("scheduler cannot be nil")
	}
	if amender == nil {
		return nil, errors.New("amender cannot be nil")
	}
	if notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if config.Composition == "" {
		config.Composition = CompositionAdditive
	}
	if config.Composition != CompositionAdditive && config.Composition != CompositionQuotaAware {
		return nil, fmt.Errorf("unknown escalator composition %q", config.Composition)
	}

	e := &Escalator{
		scheduler: scheduler,
		amender:   amender,
		notifier:  notifier,
		config:    config,
		clock:     clock.New(),
		logger:    logger.With("component", "escalator"),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Submit validates the item and schedules its first dispatch.
func (e *Escalator) Submit(ctx context.Context, item *WorkItem, work Work) (Task, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.State = WorkStatePending

	t := e.Task(item, work)
	if err := e.scheduler.ScheduleNow(t); err != nil {
		return nil, fmt.Errorf("failed to schedule work item: %w", err)
	}

	e.logger.InfoContext(ctx, "work item submitted",
		"work_item_id", item.ID,
		"kind", item.Kind,
		"audit_log_id", item.AuditLogID,
		"max_retries", item.MaxRetries)
	return t, nil
}

// Task wraps the item as a schedulable task.
func (e *Escalator) Task(item *WorkItem, work Work) Task {
	return &workTask{escalator: e, item: item, work: work}
}

// Restore rebuilds a task persisted by a Scheduler.
func (e *Escalator) Restore(record Task, work Work) (Task, error) {
	var rec workItemRecord
	if err := json.Unmarshal(record.Payload(), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode work item %s: %w", record.ID(), err)
	}

	item := &WorkItem{
		ID:         record.ID(),
		Kind:       rec.Kind,
		Payload:    rec.Payload,
		RetryCount: rec.RetryCount,
		MaxRetries: rec.MaxRetries,
		BaseDelay:  rec.BaseDelay,
		AuditLogID: rec.AuditLogID,
		State:      rec.State,
	}
	if rec.LastError != "" {
		item.LastError = errors.New(rec.LastError)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return e.Task(item, work), nil
}

func (e *Escalator) dispatch(ctx context.Context, t *workTask) error {
	item := t.item
	ctx, span := e.tracer.Start(ctx, "escalator.dispatch", trace.WithAttributes(
		attribute.String("work_item.id", item.ID.String()),
		attribute.String("work_item.kind", item.Kind),
		attribute.Int("work_item.retry_count", item.RetryCount),
	))
	defer span.End()

	logger := e.logger.With(
		"work_item_id", item.ID,
		"kind", item.Kind,
		"audit_log_id", item.AuditLogID,
		"attempt", item.Attempts(),
	)

	item.State = WorkStateInFlight
	metrics.TaskDispatches.WithLabelValues(item.Kind).Inc()
	if e.hooks.OnDispatch != nil {
		e.hooks.OnDispatch(item)
	}

	err := t.work(ctx, item)
	if err == nil {
		item.State = WorkStateSucceeded
		item.LastError = nil
		fields := audit.DeliveredFields(e.config.DeliveryChannel, item.Attempts(), e.clock.Now())
		if amendErr := e.amender.Amend(ctx, item.AuditLogID, fields); amendErr != nil {
			logger.ErrorContext(ctx, "work succeeded but audit amendment failed", "error", amendErr)
		}
		metrics.TaskOutcomes.WithLabelValues(item.Kind, string(WorkStateSucceeded)).Inc()
		if e.hooks.OnSuccess != nil {
			e.hooks.OnSuccess(item)
		}
		logger.InfoContext(ctx, "work item succeeded")
		return nil
	}

	item.LastError = err
	span.RecordError(err)

	if item.RetryCount < item.MaxRetries {
		item.RetryCount++
		item.State = WorkStateRetrying
		delay := retry.Policy{Base: item.BaseDelay}.NextDelay(item.RetryCount - 1)
		if e.config.Composition == CompositionQuotaAware && errors.Is(err, retry.ErrQuotaExhausted) {
			delay = 0
		}
		retryCount := item.RetryCount

		metrics.TaskRetries.WithLabelValues(item.Kind).Inc()
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(item, delay, err)
		}
		logger.WarnContext(ctx, "work item attempt failed, scheduling retry",
			"retry_count", retryCount,
			"delay", delay,
			"error", redact.Error(err))

		// The item may be picked up by another worker once scheduled.
		var schedErr error
		if delay == 0 {
			schedErr = e.scheduler.ScheduleNow(t)
		} else {
			schedErr = e.scheduler.Schedule(t, delay)
		}
		switch {
		case schedErr == nil:
			return fmt.Errorf("%w: retry %d: %w", ErrRetryScheduled, retryCount, err)
		case errors.Is(schedErr, ErrSchedulerStopped):
			// The retry was persisted before the scheduler refused it, so
			// recovery picks it up on the next start.
			logger.WarnContext(ctx, "scheduler stopped, retry left for recovery", "retry_count", retryCount)
			return fmt.Errorf("%w: retry %d deferred to recovery: %w", ErrRetryScheduled, retryCount, err)
		}

		logger.ErrorContext(ctx, "retry could not be scheduled, escalating", "error", schedErr)
		span.SetStatus(codes.Error, "retry not scheduled")
		item.RetryCount--
		err = fmt.Errorf("retry %d not scheduled: %w: %w", retryCount, schedErr, err)
	}

	item.State = WorkStateEscalated
	span.SetStatus(codes.Error, "escalated")
	if escErr := e.Escalate(ctx, item, err); escErr != nil {
		logger.ErrorContext(ctx, "escalation did not complete", "error", escErr)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrEscalated, item.Attempts(), err)
}

// Escalate notifies the administrator and amends the audit entry to its
// terminal failed state. It is safe to call more than once: an entry that
// already records admin_notified=true is not notified again and keeps its
// escalation timestamp. When the entry cannot be locked or read, the
// notification is still sent and the amendment error is returned.
func (e *Escalator) Escalate(ctx context.Context, item *WorkItem, lastErr error) error {
	logger := e.logger.With(
		"work_item_id", item.ID,
		"kind", item.Kind,
		"audit_log_id", item.AuditLogID,
	)

	reason := redact.Values(errorMessage(lastErr), secretsOf(item.Payload)...)
	attempted := false
	notified := false

	notifyOnce := func() error {
		attempted = true
		err := e.notifier.Notify(ctx, notify.Incident{
			WorkItemID: item.ID,
			Kind:       item.Kind,
			Payload:    item.Payload,
			LastError:  lastErr,
			AuditLogID: item.AuditLogID,
			Attempts:   item.Attempts(),
		})
		if err != nil {
			metrics.AdminNotifications.WithLabelValues("failed").Inc()
			logger.ErrorContext(ctx, "admin notification failed", "error", err)
			return err
		}
		notified = true
		metrics.AdminNotifications.WithLabelValues("sent").Inc()
		return nil
	}

	err := e.amender.Update(ctx, item.AuditLogID, func(current *audit.Entry) (audit.Fields, error) {
		already := current.Bool(audit.KeyAdminNotified)
		var notifyErr error
		if !already {
			notifyErr = notifyOnce()
		} else {
			logger.InfoContext(ctx, "admin already notified, skipping notification")
		}

		escalatedAt := current.String(audit.KeyEscalatedAt)
		fields := audit.EscalatedFields(reason, already || notified, item.Attempts(), e.clock.Now())
		if escalatedAt != "" {
			fields[audit.KeyEscalatedAt] = escalatedAt
		}
		if notifyErr != nil {
			fields[audit.KeyNotificationError] = redact.Error(notifyErr)
		}
		return fields, nil
	})

	if err != nil && !attempted {
		// The entry could not be read, so admin_notified is unknown and the
		// admin may hear about this item twice.
		if errors.Is(err, store.ErrNotFound) {
			logger.WarnContext(ctx, "audit entry missing, notifying without amendment")
		} else {
			logger.ErrorContext(ctx, "audit entry unavailable, notifying without amendment", "error", err)
		}
		_ = notifyOnce()
	}

	metrics.TaskOutcomes.WithLabelValues(item.Kind, string(WorkStateEscalated)).Inc()
	if e.hooks.OnEscalate != nil {
		e.hooks.OnEscalate(item, notified, lastErr)
	}

	if err != nil {
		return fmt.Errorf("failed to record escalation: %w", err)
	}
	logger.WarnContext(ctx, "work item escalated",
		"attempts", item.Attempts(),
		"admin_notified", notified,
		"error", reason)
	return nil
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// secretsOf returns payload values that must never reach the audit log.
func secretsOf(payload json.RawMessage) []string {
	var p struct {
		TempPassword string `json:"temp_password"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return nil
	}
	return []string{p.TempPassword}
}

// workTask runs one dispatch of a work item through the Scheduler.
type workTask struct {
	escalator *Escalator
	item      *WorkItem
	work      Work
}

func (t *workTask) ID() uuid.UUID { return t.item.ID }

func (t *workTask) Type() string { return t.item.Kind }

// Payload encodes the item with its retry state so Recover can resume it.
func (t *workTask) Payload() []byte {
	rec := workItemRecord{
		Kind:       t.item.Kind,
		RetryCount: t.item.RetryCount,
		MaxRetries: t.item.MaxRetries,
		BaseDelay:  t.item.BaseDelay,
		AuditLogID: t.item.AuditLogID,
		State:      t.item.State,
		Payload:    t.item.Payload,
	}
	if t.item.LastError != nil {
		rec.LastError = redact.Values(t.item.LastError.Error(), secretsOf(t.item.Payload)...)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return b
}

func (t *workTask) Status() TaskStatus {
	switch t.item.State {
	case WorkStateInFlight:
		return TaskStatusProcessing
	case WorkStateRetrying:
		return TaskStatusRetrying
	case WorkStateSucceeded:
		return TaskStatusCompleted
	case WorkStateEscalated:
		return TaskStatusEscalated
	default:
		return TaskStatusPending
	}
}

func (t *workTask) Execute(ctx context.Context) error {
	return t.escalator.dispatch(ctx, t)
}
