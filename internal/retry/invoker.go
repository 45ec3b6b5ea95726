// Package retry holds the resilient invocation pipeline: exponential backoff,
// the quota classifier and the Invoker that wraps every agent call with a
// rate limiter permit and an inner quota-retry loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/clock"
	"github.com/traqcheck/bgv-agent/internal/metrics"
)

const tracerName = "github.com/traqcheck/bgv-agent/internal/retry"

var (
	// ErrNilLimiter is returned when NewInvoker is given no limiter.
	ErrNilLimiter = errors.New("limiter cannot be nil")

	// ErrNilLogger is returned when NewInvoker is given no logger.
	ErrNilLogger = errors.New("logger cannot be nil")
)

// Acquirer hands out rate limiter permits.
type Acquirer interface {
	Acquire(ctx context.Context, blocking bool) (bool, error)
}

// InvokerConfig configures the inner retry loop.
type InvokerConfig struct {
	// MaxInnerAttempts is the number of quota retries after the first call.
	MaxInnerAttempts int

	// CallTimeout bounds every single call to the agent.
	CallTimeout time.Duration

	// Policy computes the wait between quota retries.
	Policy Policy
}

// DefaultInvokerConfig returns the defaults used by the agent service.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxInnerAttempts: 3,
		CallTimeout:      200 * time.Second,
		Policy:           NewPolicy(10 * time.Second),
	}
}

// Invoker calls an agent.Caller through the rate limiter, retrying quota
// failures with exponential backoff.
type Invoker struct {
	limiter  Acquirer
	config   InvokerConfig
	classify Classifier
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithClock sets the clock used for backoff waits.
func WithClock(c clock.Clock) InvokerOption {
	return func(i *Invoker) {
		i.clock = c
	}
}

// WithClassifier replaces the default error classifier.
func WithClassifier(c Classifier) InvokerOption {
	return func(i *Invoker) {
		i.classify = c
	}
}

// WithTracer sets the tracer used for invocation spans.
func WithTracer(t trace.Tracer) InvokerOption {
	return func(i *Invoker) {
		i.tracer = t
	}
}

// NewInvoker creates an Invoker. Zero config values fall back to
// DefaultInvokerConfig.
func NewInvoker(
	limiter Acquirer,
	config InvokerConfig,
	logger *slog.Logger,
	opts ...InvokerOption,
) (*Invoker, error) {
	if limiter == nil {
		return nil, ErrNilLimiter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	defaults := DefaultInvokerConfig()
	if config.MaxInnerAttempts < 0 {
		config.MaxInnerAttempts = defaults.MaxInnerAttempts
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.Policy.Base <= 0 {
		config.Policy = defaults.Policy
	}

	i := &Invoker{
		limiter:  limiter,
		config:   config,
		classify: Classify,
		clock:    clock.New(),
		logger:   logger.With("component", "invoker"),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// MaxInnerAttempts returns the configured number of quota retries.
func (i *Invoker) MaxInnerAttempts() int {
	return i.config.MaxInnerAttempts
}

// Invoke calls the agent with the configured number of quota retries.
func (i *Invoker) Invoke(ctx context.Context, caller agent.Caller, req agent.Request) (agent.Response, error) {
	return i.InvokeWithAttempts(ctx, caller, req, i.config.MaxInnerAttempts)
}

// InvokeWithAttempts calls the agent up to maxInnerAttempts+1 times.
//
// Only quota-class failures are retried here; any other failure is returned
// at once as a *CallError so that the outer task retry can decide. When the
// last attempt still fails on quota the error wraps ErrQuotaExhausted.
func (i *Invoker) InvokeWithAttempts(
	ctx context.Context,
	caller agent.Caller,
	req agent.Request,
	maxInnerAttempts int,
) (agent.Response, error) {
	ctx, span := i.tracer.Start(ctx, "retry.Invoke", trace.WithAttributes(
		attribute.String("agent.kind", req.Kind),
		attribute.Int64("bgv_request_id", req.BGVRequestID),
		attribute.Int("max_inner_attempts", maxInnerAttempts),
	))
	defer span.End()

	log := i.logger.With("agent_kind", req.Kind, "bgv_request_id", req.BGVRequestID)

	for attempt := 0; attempt <= maxInnerAttempts; attempt++ {
		granted, err := i.limiter.Acquire(ctx, true)
		if err != nil {
			span.SetStatus(codes.Error, "rate limiter unavailable")
			return agent.Response{}, fmt.Errorf("%w: %w", ErrRateLimiterUnavailable, err)
		}
		if !granted {
			span.SetStatus(codes.Error, "rate limiter unavailable")
			return agent.Response{}, ErrRateLimiterUnavailable
		}

		resp, callErr := i.call(ctx, caller, req, attempt)
		if callErr == nil {
			metrics.InvokerAttempts.WithLabelValues("success").Inc()
			log.InfoContext(ctx, "agent call succeeded", "attempt", attempt+1)
			return resp, nil
		}

		class := i.classify(callErr)
		if class != QuotaExceeded {
			metrics.InvokerAttempts.WithLabelValues("failure").Inc()
			log.ErrorContext(ctx, "agent call failed",
				"attempt", attempt+1,
				"error_class", class.String(),
				"error", callErr)
			span.RecordError(callErr)
			span.SetStatus(codes.Error, class.String())
			return agent.Response{}, &CallError{Class: class, Attempts: attempt + 1, Err: callErr}
		}

		metrics.InvokerAttempts.WithLabelValues("quota").Inc()
		if attempt >= maxInnerAttempts {
			log.ErrorContext(ctx, "quota retries exhausted",
				"attempts", attempt+1,
				"error", callErr)
			span.RecordError(callErr)
			span.SetStatus(codes.Error, "quota exhausted")
			return agent.Response{}, fmt.Errorf("%w after %d attempt(s): %w", ErrQuotaExhausted, attempt+1, callErr)
		}

		delay := i.config.Policy.NextDelay(attempt)
		log.WarnContext(ctx, "quota exceeded, backing off",
			"attempt", attempt+1,
			"max_attempts", maxInnerAttempts+1,
			"delay", delay)

		if err := i.sleep(ctx, delay); err != nil {
			span.SetStatus(codes.Error, "backoff interrupted")
			return agent.Response{}, fmt.Errorf("backoff interrupted: %w", err)
		}
	}

	// unreachable: the last iteration always returns
	return agent.Response{}, ErrQuotaExhausted
}

func (i *Invoker) call(
	ctx context.Context,
	caller agent.Caller,
	req agent.Request,
	attempt int,
) (agent.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.config.CallTimeout)
	defer cancel()

	callCtx, span := i.tracer.Start(callCtx, "retry.attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	start := time.Now()
	resp, err := caller.Invoke(callCtx, req)
	metrics.InvokerLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		span.SetAttributes(attribute.String("error.class", i.classify(err).String()))
		span.RecordError(err)
	}
	return resp, err
}

func (i *Invoker) sleep(ctx context.Context, d time.Duration) error {
	timer := i.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
