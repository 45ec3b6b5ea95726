package task_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/task"
	"github.com/traqcheck/bgv-agent/internal/task/mocks"
)

func newCredentialDelivery(t *testing.T, f *escalatorFixture, invoker *mocks.Invoker) *task.CredentialDelivery {
	t.Helper()
	callers := &mocks.CallerSource{Caller: agent.CallerFunc(func(ctx context.Context, req agent.Request) (agent.Response, error) {
		return agent.Response{}, nil
	})}
	d, err := task.NewCredentialDelivery(f.escalator, callers, invoker, task.CredentialDeliveryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Minute,
		LoginURL:   "https://portal.example.com/login",
	}, discardLogger())
	require.NoError(t, err)
	return d
}

func credentialPayload(entryID audit.EntryID) task.CredentialPayload {
	return task.CredentialPayload{
		BGVRequestID:   42,
		CandidateEmail: "jane@example.com",
		CandidateName:  "Jane Doe",
		TempPassword:   testSecret,
		AuditLogID:     entryID,
	}
}

func TestCredentialDelivery_Delivers(t *testing.T) {
	t.Parallel()

	f := newEscalatorFixture(t, task.EscalatorConfig{DeliveryChannel: task.DeliveryChannelAgent})
	invoker := &mocks.Invoker{}
	d := newCredentialDelivery(t, f, invoker)

	id := uuid.New()
	got, err := d.Submit(context.Background(), id, credentialPayload(f.entryID))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	errs := f.scheduler.drain(context.Background())
	require.Len(t, errs, 1)
	assert.NoError(t, errs[0])

	requests := invoker.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, agent.KindOnboarding, requests[0].Kind)
	assert.Equal(t, int64(42), requests[0].BGVRequestID)
	assert.Contains(t, requests[0].Prompt, "jane@example.com")
	assert.Contains(t, requests[0].Prompt, "https://portal.example.com/login")

	entry := f.entry(t)
	assert.True(t, entry.Bool(audit.KeyDelivered))
	assert.Equal(t, task.DeliveryChannelAgent, entry.String(audit.KeyDeliveryChannel))
}

func TestCredentialDelivery_NoEmailSentIsRetried(t *testing.T) {
	t.Parallel()

	f := newEscalatorFixture(t, task.EscalatorConfig{})
	var calls int32
	invoker := &mocks.Invoker{
		InvokeFn: func(ctx context.Context, caller agent.Caller, req agent.Request) (agent.Response, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return agent.Response{Output: "I could not send it"}, nil
			}
			return agent.Response{EmailsSent: 1}, nil
		},
	}
	d := newCredentialDelivery(t, f, invoker)

	_, err := d.Submit(context.Background(), uuid.Nil, credentialPayload(f.entryID))
	require.NoError(t, err)

	errs := f.scheduler.drain(context.Background())
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], task.ErrRetryScheduled)
	assert.ErrorIs(t, errs[0], task.ErrNoEmailSent)
	assert.NoError(t, errs[1])
}

func TestCredentialDelivery_PayloadOverrides(t *testing.T) {
	t.Parallel()

	f := newEscalatorFixture(t, task.EscalatorConfig{})
	invoker := &mocks.Invoker{
		InvokeFn: func(ctx context.Context, caller agent.Caller, req agent.Request) (agent.Response, error) {
			return agent.Response{}, errors.New("agent unavailable")
		},
	}
	d := newCredentialDelivery(t, f, invoker)

	p := credentialPayload(f.entryID)
	maxRetries := 1
	p.MaxRetries = &maxRetries
	p.BaseDelay = "10s"

	_, err := d.Submit(context.Background(), uuid.Nil, p)
	require.NoError(t, err)
	f.scheduler.drain(context.Background())

	assert.Len(t, invoker.Requests(), 2)
	delays := f.scheduler.recordedDelays()
	require.Len(t, delays, 2)
	assert.Equal(t, "10s", delays[1].String())
	assert.Len(t, f.notifier.Incidents(), 1)
}

func TestCredentialDelivery_RejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	f := newEscalatorFixture(t, task.EscalatorConfig{})
	d := newCredentialDelivery(t, f, &mocks.Invoker{})

	p := credentialPayload(f.entryID)
	p.TempPassword = ""
	_, err := d.Submit(context.Background(), uuid.Nil, p)
	assert.ErrorIs(t, err, task.ErrInvalidWorkItem)
	assert.Empty(t, f.scheduler.recordedDelays())
}

func TestCredentialDelivery_FactoryRestoresTask(t *testing.T) {
	t.Parallel()

	f := newEscalatorFixture(t, task.EscalatorConfig{})
	invoker := &mocks.Invoker{}
	d := newCredentialDelivery(t, f, invoker)

	id, err := d.Submit(context.Background(), uuid.Nil, credentialPayload(f.entryID))
	require.NoError(t, err)
	queued := f.scheduler.pop()
	require.NotNil(t, queued)

	restored, err := d.Factory()(&task.Record{
		TaskID:      id,
		TaskType:    task.TaskTypeCredentialDelivery,
		TaskPayload: queued.Payload(),
		TaskStatus:  task.TaskStatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Execute(context.Background()))
	assert.Len(t, invoker.Requests(), 1)
}
