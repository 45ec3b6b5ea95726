// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateLimitAcquisitions counts limiter outcomes: granted, denied or canceled
	RateLimitAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_ratelimit_acquisitions_total",
			Help: "Total number of rate limiter acquisition attempts by result",
		},
		[]string{"result"},
	)

	// RateLimitWait tracks how long blocking callers waited for a permit
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bgv_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter permit",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	// InvokerAttempts counts agent call attempts by outcome
	InvokerAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_invoker_attempts_total",
			Help: "Total number of agent call attempts by outcome",
		},
		[]string{"outcome"},
	)

	// InvokerLatency tracks single agent call latency
	InvokerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bgv_invoker_call_seconds",
			Help:    "Latency of a single agent call in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 200},
		},
	)

	// TaskDispatches counts work item dispatches per kind
	TaskDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_task_dispatches_total",
			Help: "Total number of work item dispatches",
		},
		[]string{"kind"},
	)

	// TaskRetries counts scheduled outer retries per kind
	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_task_retries_total",
			Help: "Total number of scheduled work item retries",
		},
		[]string{"kind"},
	)

	// TaskOutcomes counts terminal work item states per kind
	TaskOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_task_outcomes_total",
			Help: "Total number of work items reaching a terminal state",
		},
		[]string{"kind", "state"},
	)

	// AdminNotifications counts fallback notifications by result
	AdminNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_admin_notifications_total",
			Help: "Total number of fallback admin notifications",
		},
		[]string{"result"},
	)

	// Reminders counts reminder dispatches by trigger and result
	Reminders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_reminders_total",
			Help: "Total number of document reminders by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	// SweepRuns counts reminder sweep passes by result
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_reminder_sweeps_total",
			Help: "Total number of reminder sweep passes",
		},
		[]string{"result"},
	)

	// QueueDepth reports tasks buffered for the worker pool
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgv_task_queue_depth",
			Help: "Number of tasks waiting in the in-memory queue",
		},
	)

	// QueueRejections counts tasks refused by the queue by task type and reason
	QueueRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgv_task_queue_rejections_total",
			Help: "Total number of tasks the in-memory queue refused",
		},
		[]string{"task_type", "reason"},
	)
)
