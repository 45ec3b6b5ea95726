//go:build integration

package postgres

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/store"
	"github.com/traqcheck/bgv-agent/internal/task"
	"github.com/traqcheck/bgv-agent/internal/testdb"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := testdb.Open(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Migrate(context.Background(), db.DB, MigrateUp, logger))
	return db
}

func uniqueRequestID() int64 {
	return time.Now().UnixNano()/1000 + rand.Int63n(1000)
}

func seedRequest(t *testing.T, s *BGVRequestStore, status domain.BGVStatus, createdAt time.Time) *domain.BGVRequest {
	t.Helper()
	req := &domain.BGVRequest{
		ID:              uniqueRequestID(),
		CandidateName:   "Asha Rao",
		CandidateEmail:  "asha@example.com",
		Role:            "Backend Engineer",
		TotalExperience: 4,
		Status:          status,
		CreatedAt:       createdAt,
	}
	require.NoError(t, s.Upsert(context.Background(), req))
	return req
}

func TestBGVRequestStore_Integration(t *testing.T) {
	db := testDB(t)
	s := NewBGVRequestStore(db)
	ctx := context.Background()

	created := time.Now().UTC().Add(-100 * time.Hour).Truncate(time.Second)
	req := seedRequest(t, s, domain.BGVStatusDocumentsRequested, created)

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.CandidateName)
	assert.True(t, got.CreatedAt.Equal(created))

	// Upsert refreshes candidate fields and keeps the status.
	req.CandidateName = "Asha R."
	req.Status = domain.BGVStatusPendingAnalysis
	require.NoError(t, s.Upsert(ctx, req))
	got, err = s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", got.CandidateName)
	assert.Equal(t, domain.BGVStatusDocumentsRequested, got.Status)

	stale, err := s.ListStale(ctx, domain.BGVStatusDocumentsRequested, time.Now().UTC().Add(-72*time.Hour))
	require.NoError(t, err)
	found := false
	for _, r := range stale {
		if r.ID == req.ID {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, s.UpdateStatus(ctx, req.ID, domain.BGVStatusDocumentsSubmitted))
	got, err = s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BGVStatusDocumentsSubmitted, got.Status)

	assert.ErrorIs(t, s.UpdateStatus(ctx, -1, domain.BGVStatusCompleted), store.ErrBGVRequestNotFound)
	_, err = s.Get(ctx, -1)
	assert.ErrorIs(t, err, store.ErrBGVRequestNotFound)
}

func TestAuditStore_Integration(t *testing.T) {
	db := testDB(t)
	s := NewAuditStore(db)
	ctx := context.Background()
	requestID := uniqueRequestID()

	entry := &audit.Entry{
		BGVRequestID: requestID,
		Action:       audit.ActionCredentialsDelivery,
		Message:      "queued",
		Metadata:     map[string]any{"candidate_email": "asha@example.com"},
	}
	require.NoError(t, s.Create(ctx, entry))
	require.NotZero(t, entry.ID)

	require.NoError(t, s.Amend(ctx, entry.ID, audit.Fields{
		audit.KeyFailureReason: "quota",
		audit.KeyDelivered:     false,
		audit.KeyAttempts:      2,
	}))
	require.NoError(t, s.Amend(ctx, entry.ID, audit.Fields{
		audit.KeyDelivered:     true,
		audit.KeyFailureReason: nil,
	}))

	got, err := s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, true, got.Metadata[audit.KeyDelivered])
	assert.Equal(t, float64(2), got.Metadata[audit.KeyAttempts])
	assert.Equal(t, "asha@example.com", got.Metadata[audit.KeyCandidateEmail])
	_, hasReason := got.Metadata[audit.KeyFailureReason]
	assert.False(t, hasReason)

	reminder := &audit.Entry{BGVRequestID: requestID, Action: audit.ActionReminderSent, Message: "reminded"}
	require.NoError(t, s.Create(ctx, reminder))

	all, err := s.Query(ctx, audit.Filter{BGVRequestID: requestID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, reminder.ID, all[0].ID)

	reminders, err := s.Query(ctx, audit.Filter{
		BGVRequestID: requestID,
		Action:       audit.ActionReminderSent,
		CreatedAfter: time.Now().UTC().Add(-time.Hour),
		Limit:        1,
	})
	require.NoError(t, err)
	require.Len(t, reminders, 1)

	assert.ErrorIs(t, s.Amend(ctx, -1, audit.Fields{"x": 1}), store.ErrAuditLogNotFound)
	_, err = s.Get(ctx, -1)
	assert.ErrorIs(t, err, store.ErrAuditLogNotFound)
}

func TestTaskStore_Integration(t *testing.T) {
	db := testDB(t)
	s := NewPostgresTaskStore(db)
	ctx := context.Background()

	rec := &task.Record{
		TaskID:      uuid.New(),
		TaskType:    task.TaskTypeCredentialDelivery,
		TaskPayload: []byte(`{"retry_count":0}`),
		TaskStatus:  task.TaskStatusPending,
	}
	require.NoError(t, s.SaveTask(ctx, rec))

	rec.TaskPayload = []byte(`{"retry_count":1}`)
	rec.TaskStatus = task.TaskStatusRetrying
	require.NoError(t, s.SaveTask(ctx, rec))

	retrying, err := s.GetRetryingTasks(ctx)
	require.NoError(t, err)
	var got *task.Record
	for _, tk := range retrying {
		if tk.ID() == rec.TaskID {
			got = tk.(*task.Record)
		}
	}
	require.NotNil(t, got)
	assert.JSONEq(t, `{"retry_count":1}`, string(got.Payload()))

	require.NoError(t, s.UpdateTaskStatus(ctx, rec.TaskID, task.TaskStatusEscalated, "gave up"))
	require.NoError(t, s.UpdateTaskStatus(ctx, uuid.New(), task.TaskStatusFailed, ""))

	retrying, err = s.GetRetryingTasks(ctx)
	require.NoError(t, err)
	for _, tk := range retrying {
		assert.NotEqual(t, rec.TaskID, tk.ID())
	}
}

func TestTaskStore_RolledBackWithTx(t *testing.T) {
	db := testDB(t)
	id := uuid.New()

	testdb.WithTx(t, db, func(t *testing.T, tx *sqlx.Tx) {
		s := NewPostgresTaskStore(tx)
		require.NoError(t, s.SaveTask(context.Background(), &task.Record{
			TaskID:      id,
			TaskType:    task.TaskTypeCredentialDelivery,
			TaskPayload: []byte(`{}`),
			TaskStatus:  task.TaskStatusPending,
		}))

		pending, err := s.GetPendingTasks(context.Background())
		require.NoError(t, err)
		assert.True(t, containsTask(pending, id))
	})

	pending, err := NewPostgresTaskStore(db).GetPendingTasks(context.Background())
	require.NoError(t, err)
	assert.False(t, containsTask(pending, id))
}

func TestTaskStore_DeleteFinishedTasks(t *testing.T) {
	db := testDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sqlx.Tx) {
		ctx := context.Background()
		s := NewPostgresTaskStore(tx)
		old := &task.Record{
			TaskID:      uuid.New(),
			TaskType:    task.TaskTypeCredentialDelivery,
			TaskPayload: []byte(`{"temp_password":"x"}`),
			TaskStatus:  task.TaskStatusEscalated,
		}
		live := &task.Record{
			TaskID:      uuid.New(),
			TaskType:    task.TaskTypeCredentialDelivery,
			TaskPayload: []byte(`{}`),
			TaskStatus:  task.TaskStatusRetrying,
		}
		require.NoError(t, s.SaveTask(ctx, old))
		require.NoError(t, s.SaveTask(ctx, live))
		_, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at = NOW() - INTERVAL '30 days' WHERE id = ANY(ARRAY[$1, $2]::uuid[])`,
			old.TaskID, live.TaskID)
		require.NoError(t, err)

		n, err := s.DeleteFinishedTasks(ctx, 7*24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		var remaining []uuid.UUID
		require.NoError(t, tx.SelectContext(ctx, &remaining,
			`SELECT id FROM tasks WHERE id = ANY(ARRAY[$1, $2]::uuid[])`, old.TaskID, live.TaskID))
		assert.Equal(t, []uuid.UUID{live.TaskID}, remaining)
	})
}

func containsTask(tasks []task.Task, id uuid.UUID) bool {
	for _, tk := range tasks {
		if tk.ID() == id {
			return true
		}
	}
	return false
}
