package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/clock"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/metrics"
	"github.com/traqcheck/bgv-agent/internal/store"
)

// ErrLeaseHeld is returned by Lease.Acquire when another instance holds the
// sweep lease.
var ErrLeaseHeld = errors.New("sweep lease held by another instance")

// Lease grants one process the right to run a sweep pass.
type Lease interface {
	// Acquire returns a release function, or ErrLeaseHeld.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// ReminderSweepConfig controls which requests get automated reminders.
type ReminderSweepConfig struct {
	// Threshold is how long a request must stay in documents_requested.
	Threshold time.Duration

	// Cooldown is the minimum gap between two reminders for one request.
	Cooldown time.Duration

	// Interval is the period of Run.
	Interval time.Duration

	// LeaseTTL bounds how long one pass may hold the lease.
	LeaseTTL time.Duration
}

// DefaultReminderSweepConfig returns the standard reminder cadence.
func DefaultReminderSweepConfig() ReminderSweepConfig {
	return ReminderSweepConfig{
		Threshold: 72 * time.Hour,
		Cooldown:  48 * time.Hour,
		Interval:  time.Hour,
		LeaseTTL:  10 * time.Minute,
	}
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned         int `json:"scanned"`
	Sent            int `json:"sent"`
	SkippedCooldown int `json:"skipped_cooldown"`
	Failed          int `json:"failed"`
}

const sweepLeaseName = "reminder_sweep"

// ReminderSweep sends automated reminders for requests stuck waiting on
// candidate documents.
type ReminderSweep struct {
	requests   store.BGVRequestStore
	audit      audit.Store
	dispatcher ReminderDispatcher
	lease      Lease
	config     ReminderSweepConfig
	clock      clock.Clock
	logger     *slog.Logger
}

// NewReminderSweep creates a ReminderSweep. A nil lease runs every pass
// unconditionally.
func NewReminderSweep(
	requests store.BGVRequestStore,
	auditStore audit.Store,
	dispatcher ReminderDispatcher,
	lease Lease,
	config ReminderSweepConfig,
	clk clock.Clock,
	logger *slog.Logger,
) (*ReminderSweep, error) {
	if requests == nil || auditStore == nil {
		return nil, errors.New("reminder sweep needs request and audit stores")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if clk == nil {
		clk = clock.New()
	}
	defaults := DefaultReminderSweepConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaults.Cooldown
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = defaults.LeaseTTL
	}
	return &ReminderSweep{
		requests:   requests,
		audit:      auditStore,
		dispatcher: dispatcher,
		lease:      lease,
		config:     config,
		clock:      clk,
		logger:     logger.With("component", "reminder_sweep"),
	}, nil
}

// SweepOnce runs a single pass. A request is reminded when it has been in
// documents_requested longer than the threshold and has no reminder_sent
// entry within the cooldown. One failing request does not stop the pass.
func (s *ReminderSweep) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	if s.lease != nil {
		release, err := s.lease.Acquire(ctx, sweepLeaseName, s.config.LeaseTTL)
		if err != nil {
			if errors.Is(err, ErrLeaseHeld) {
				metrics.SweepRuns.WithLabelValues("skipped").Inc()
				s.logger.DebugContext(ctx, "sweep lease held elsewhere, skipping pass")
				return result, nil
			}
			metrics.SweepRuns.WithLabelValues("failed").Inc()
			return result, fmt.Errorf("failed to acquire sweep lease: %w", err)
		}
		defer release()
	}

	now := s.clock.Now()
	stale, err := s.requests.ListStale(ctx, domain.BGVStatusDocumentsRequested, now.Add(-s.config.Threshold))
	if err != nil {
		metrics.SweepRuns.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("failed to list stale requests: %w", err)
	}
	result.Scanned = len(stale)

	cooldownStart := now.Add(-s.config.Cooldown)
	for _, req := range stale {
		if ctx.Err() != nil {
			break
		}

		recent, err := s.audit.Query(ctx, audit.Filter{
			BGVRequestID: req.ID,
			Action:       audit.ActionReminderSent,
			CreatedAfter: cooldownStart,
			Limit:        1,
		})
		if err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "failed to check reminder history",
				"bgv_request_id", req.ID,
				"error", err)
			continue
		}
		if len(recent) > 0 {
			result.SkippedCooldown++
			continue
		}

		if _, err := s.dispatcher.Dispatch(ctx, req, TriggerAutomated); err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "automated reminder failed",
				"bgv_request_id", req.ID,
				"error", err)
			continue
		}
		result.Sent++
	}

	metrics.SweepRuns.WithLabelValues("completed").Inc()
	s.logger.InfoContext(ctx, "reminder sweep finished",
		"scanned", result.Scanned,
		"sent", result.Sent,
		"skipped_cooldown", result.SkippedCooldown,
		"failed", result.Failed)
	return result, ctx.Err()
}

// Run sweeps every interval until ctx is canceled.
func (s *ReminderSweep) Run(ctx context.Context) {
	timer := s.clock.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "reminder sweep failed", "error", err)
			}
			timer.Reset(s.config.Interval)
		}
	}
}
