package store

import (
	"context"
	"time"

	"github.com/traqcheck/bgv-agent/internal/domain"
)

// BGVRequestStore defines the operations the agent needs on BGV requests.
// The workflow backend owns the full record; this service reads it, keeps
// the candidate fields it was handed in sync and moves the status forward.
type BGVRequestStore interface {
	// Get retrieves a request by ID.
	// Returns ErrBGVRequestNotFound if the request does not exist.
	Get(ctx context.Context, id int64) (*domain.BGVRequest, error)

	// Upsert creates the request or updates its candidate fields.
	// An existing status is never overwritten.
	Upsert(ctx context.Context, req *domain.BGVRequest) error

	// UpdateStatus moves the request to the given status.
	// Returns ErrBGVRequestNotFound if the request does not exist.
	UpdateStatus(ctx context.Context, id int64, status domain.BGVStatus) error

	// ListStale returns requests in the given status created before the
	// cutoff, oldest first.
	ListStale(ctx context.Context, status domain.BGVStatus, createdBefore time.Time) ([]*domain.BGVRequest, error)
}
