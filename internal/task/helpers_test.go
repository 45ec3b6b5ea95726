package task_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/clock"
	"github.com/traqcheck/bgv-agent/internal/platform/memory"
	"github.com/traqcheck/bgv-agent/internal/task"
	"github.com/traqcheck/bgv-agent/internal/task/mocks"
)

var testEpoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// queueScheduler records scheduling calls and runs tasks only when drained.
type queueScheduler struct {
	mu     sync.Mutex
	queue  []task.Task
	delays []time.Duration

	// rejectDelayed, when set, fails every Schedule call with a delay.
	rejectDelayed error
}

func (s *queueScheduler) Schedule(t task.Task, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay > 0 && s.rejectDelayed != nil {
		return s.rejectDelayed
	}
	s.queue = append(s.queue, t)
	s.delays = append(s.delays, delay)
	return nil
}

func (s *queueScheduler) ScheduleNow(t task.Task) error {
	return s.Schedule(t, 0)
}

func (s *queueScheduler) pop() task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t
}

// drain executes queued tasks until none are left and returns their errors.
func (s *queueScheduler) drain(ctx context.Context) []error {
	var errs []error
	for t := s.pop(); t != nil; t = s.pop() {
		errs = append(errs, t.Execute(ctx))
	}
	return errs
}

func (s *queueScheduler) recordedDelays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type escalatorFixture struct {
	scheduler *queueScheduler
	audit     *memory.AuditStore
	notifier  *mocks.Notifier
	clock     *clock.Fake
	escalator *task.Escalator
	entryID   audit.EntryID
}

func newEscalatorFixture(t *testing.T, config task.EscalatorConfig, opts ...task.EscalatorOption) *escalatorFixture {
	t.Helper()

	f := &escalatorFixture{
		scheduler: &queueScheduler{},
		audit:     memory.NewAuditStore(),
		notifier:  &mocks.Notifier{},
		clock:     clock.NewFake(testEpoch),
	}

	entry := &audit.Entry{
		BGVRequestID: 42,
		Action:       audit.ActionCredentialsDelivery,
		Message:      "Credentials queued for delivery",
		Metadata:     map[string]any{audit.KeyCandidateEmail: "jane@example.com"},
	}
	require.NoError(t, f.audit.Create(context.Background(), entry))
	f.entryID = entry.ID

	amender, err := audit.NewAmender(f.audit, nil, discardLogger())
	require.NoError(t, err)

	opts = append([]task.EscalatorOption{task.WithEscalatorClock(f.clock)}, opts...)
	f.escalator, err = task.NewEscalator(f.scheduler, amender, f.notifier, config, discardLogger(), opts...)
	require.NoError(t, err)
	return f
}

func (f *escalatorFixture) entry(t *testing.T) *audit.Entry {
	t.Helper()
	e, err := f.audit.Get(context.Background(), f.entryID)
	require.NoError(t, err)
	return e
}
