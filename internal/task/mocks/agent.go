package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/notify"
)

// CallerSource is a mock implementation of task.CallerSource
type CallerSource struct {
	Caller agent.Caller
	GetFn  func(ctx context.Context) (agent.Caller, error)
}

// Get implements task.CallerSource
func (m *CallerSource) Get(ctx context.Context) (agent.Caller, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx)
	}
	return m.Caller, nil
}

// Invoker is a mock implementation of task.AgentInvoker that records requests
type Invoker struct {
	InvokeFn func(ctx context.Context, caller agent.Caller, req agent.Request) (agent.Response, error)

	mu       sync.Mutex
	requests []agent.Request
}

// Invoke implements task.AgentInvoker
func (m *Invoker) Invoke(ctx context.Context, caller agent.Caller, req agent.Request) (agent.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, caller, req)
	}
	return agent.Response{EmailsSent: 1}, nil
}

// Requests returns the requests seen so far
func (m *Invoker) Requests() []agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.Request(nil), m.requests...)
}

// ReminderDispatcher is a mock implementation of task.ReminderDispatcher
type ReminderDispatcher struct {
	DispatchFn func(ctx context.Context, req *domain.BGVRequest, trigger string) (agent.Response, error)

	mu         sync.Mutex
	dispatched []int64
}

// Dispatch implements task.ReminderDispatcher
func (m *ReminderDispatcher) Dispatch(ctx context.Context, req *domain.BGVRequest, trigger string) (agent.Response, error) {
	m.mu.Lock()
	m.dispatched = append(m.dispatched, req.ID)
	m.mu.Unlock()

	if m.DispatchFn != nil {
		return m.DispatchFn(ctx, req, trigger)
	}
	return agent.Response{}, nil
}

// Dispatched returns the request IDs dispatched so far
func (m *ReminderDispatcher) Dispatched() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.dispatched...)
}

// Notifier is a mock implementation of notify.Notifier that records incidents
type Notifier struct {
	NotifyFn func(ctx context.Context, incident notify.Incident) error

	mu        sync.Mutex
	incidents []notify.Incident
}

// Notify implements notify.Notifier
func (m *Notifier) Notify(ctx context.Context, incident notify.Incident) error {
	m.mu.Lock()
	m.incidents = append(m.incidents, incident)
	m.mu.Unlock()

	if m.NotifyFn != nil {
		return m.NotifyFn(ctx, incident)
	}
	return nil
}

// Incidents returns the incidents seen so far
func (m *Notifier) Incidents() []notify.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Incident(nil), m.incidents...)
}

// Lease is a mock implementation of task.Lease
type Lease struct {
	AcquireFn func(ctx context.Context, name string, ttl time.Duration) (func(), error)

	mu       sync.Mutex
	released int
}

// Acquire implements task.Lease
func (m *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(ctx, name, ttl)
	}
	return func() {
		m.mu.Lock()
		m.released++
		m.mu.Unlock()
	}, nil
}

// Released returns how many acquired leases were released
func (m *Lease) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}
