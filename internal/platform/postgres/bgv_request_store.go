package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/platform/logger"
	"github.com/traqcheck/bgv-agent/internal/store"
)

// BGVRequestStore implements store.BGVRequestStore on the bgv_requests table.
// The table holds only what the agent needs; the workflow backend owns the
// full record.
type BGVRequestStore struct {
	db *sqlx.DB
}

// NewBGVRequestStore creates a BGVRequestStore.
func NewBGVRequestStore(db *sqlx.DB) *BGVRequestStore {
	return &BGVRequestStore{db: db}
}

const bgvRequestColumns = `id, candidate_name, candidate_email, role, total_experience, status, created_at, updated_at`

// Get loads a request.
func (s *BGVRequestStore) Get(ctx context.Context, id int64) (*domain.BGVRequest, error) {
	var req domain.BGVRequest
	err := s.db.GetContext(ctx, &req, `SELECT `+bgvRequestColumns+` FROM bgv_requests WHERE id = $1`, id)
	if err != nil {
		return nil, MapError(err, store.ErrBGVRequestNotFound)
	}
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return &req, nil
}

// Upsert inserts the request or refreshes its candidate fields. The status
// and creation time of an existing row are kept.
func (s *BGVRequestStore) Upsert(ctx context.Context, req *domain.BGVRequest) error {
	if err := req.Validate(); err != nil {
		return store.NewStoreError("bgv_request", "upsert", "validation failed", err)
	}

	now := time.Now().UTC()
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bgv_requests (id, candidate_name, candidate_email, role, total_experience, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			candidate_name = EXCLUDED.candidate_name,
			candidate_email = EXCLUDED.candidate_email,
			role = EXCLUDED.role,
			total_experience = EXCLUDED.total_experience,
			updated_at = EXCLUDED.updated_at`,
		req.ID, req.CandidateName, req.CandidateEmail, req.Role, req.TotalExperience,
		string(req.Status), createdAt, now)
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert bgv request",
			"bgv_request_id", req.ID,
			"error", err)
		return MapError(err, nil)
	}
	return nil
}

// UpdateStatus moves the request to status.
func (s *BGVRequestStore) UpdateStatus(ctx context.Context, id int64, status domain.BGVStatus) error {
	if !domain.IsValidBGVStatus(status) {
		return store.NewStoreError("bgv_request", "update_status", "invalid status", domain.ErrInvalidBGVStatus)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE bgv_requests SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return MapError(err, nil)
	}
	return CheckRowsAffected(result, store.ErrBGVRequestNotFound)
}

// ListStale returns requests in status created before the cutoff, oldest
// first.
func (s *BGVRequestStore) ListStale(
	ctx context.Context,
	status domain.BGVStatus,
	createdBefore time.Time,
) ([]*domain.BGVRequest, error) {
	var rows []*domain.BGVRequest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+bgvRequestColumns+`
		FROM bgv_requests
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC`,
		string(status), createdBefore)
	if err != nil {
		return nil, MapError(err, nil)
	}
	for _, r := range rows {
		r.CreatedAt = r.CreatedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
	}
	return rows, nil
}

var _ store.BGVRequestStore = (*BGVRequestStore)(nil)
