package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/store"
)

// AuditStore implements audit.Store in memory.
type AuditStore struct {
	mu      sync.RWMutex
	entries map[audit.EntryID]*audit.Entry
	nextID  audit.EntryID
	now     func() time.Time
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{
		entries: make(map[audit.EntryID]*audit.Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a copy of the entry, assigning the next free ID when the
// entry has none. CreatedAt is kept when already set.
func (s *AuditStore) Create(ctx context.Context, entry *audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return store.NewStoreError("audit_log", "create", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == 0 {
		s.nextID++
		entry.ID = s.nextID
	} else if _, exists := s.entries[entry.ID]; exists {
		return store.ErrDuplicate
	} else if entry.ID > s.nextID {
		s.nextID = entry.ID
	}

	now := s.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]any)
	}

	s.entries[entry.ID] = entry.Clone()
	return nil
}

// Get returns a copy of the entry.
func (s *AuditStore) Get(ctx context.Context, id audit.EntryID) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, store.ErrAuditLogNotFound
	}
	return e.Clone(), nil
}

// Amend overwrites the given metadata keys.
func (s *AuditStore) Amend(ctx context.Context, id audit.EntryID, fields audit.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return store.ErrAuditLogNotFound
	}
	e.Metadata = fields.Apply(e.Metadata)
	e.UpdatedAt = s.now()
	return nil
}

// Query returns copies of the matching entries, newest first.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	s.mu.RLock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if filter.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var _ audit.Store = (*AuditStore)(nil)
