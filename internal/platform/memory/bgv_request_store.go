package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/traqcheck/bgv-agent/internal/domain"
	"github.com/traqcheck/bgv-agent/internal/store"
)

// BGVRequestStore implements store.BGVRequestStore in memory.
type BGVRequestStore struct {
	mu       sync.RWMutex
	requests map[int64]domain.BGVRequest
}

// NewBGVRequestStore creates an empty BGVRequestStore.
func NewBGVRequestStore() *BGVRequestStore {
	return &BGVRequestStore{requests: make(map[int64]domain.BGVRequest)}
}

// Get returns a copy of the request.
func (s *BGVRequestStore) Get(ctx context.Context, id int64) (*domain.BGVRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, store.ErrBGVRequestNotFound
	}
	return &r, nil
}

// Upsert inserts the request or refreshes its candidate fields.
func (s *BGVRequestStore) Upsert(ctx context.Context, req *domain.BGVRequest) error {
	if err := req.Validate(); err != nil {
		return store.NewStoreError("bgv_request", "upsert", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.requests[req.ID]
	if !ok {
		r := *req
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		s.requests[req.ID] = r
		return nil
	}

	existing.CandidateName = req.CandidateName
	existing.CandidateEmail = req.CandidateEmail
	existing.Role = req.Role
	existing.TotalExperience = req.TotalExperience
	existing.UpdatedAt = now
	s.requests[req.ID] = existing
	return nil
}

// UpdateStatus moves the request to status.
func (s *BGVRequestStore) UpdateStatus(ctx context.Context, id int64, status domain.BGVStatus) error {
	if !domain.IsValidBGVStatus(status) {
		return store.NewStoreError("bgv_request", "update_status", "invalid status", domain.ErrInvalidBGVStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return store.ErrBGVRequestNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	s.requests[id] = r
	return nil
}

// ListStale returns requests in status created before the cutoff, oldest first.
func (s *BGVRequestStore) ListStale(
	ctx context.Context,
	status domain.BGVStatus,
	createdBefore time.Time,
) ([]*domain.BGVRequest, error) {
	s.mu.RLock()
	var out []*domain.BGVRequest
	for _, r := range s.requests {
		if r.Status == status && r.CreatedAt.Before(createdBefore) {
			r := r
			out = append(out, &r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ store.BGVRequestStore = (*BGVRequestStore)(nil)
