package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"
)

// DefaultDedupeWindow is how long a credential submission blocks repeats
// for the same BGV request.
const DefaultDedupeWindow = 10 * time.Minute

// SubmissionDeduper remembers recent credential submissions per BGV request.
type SubmissionDeduper struct {
	cache otter.Cache[int64, uuid.UUID]
}

// NewSubmissionDeduper creates a deduper holding up to capacity requests
// for window each.
func NewSubmissionDeduper(window time.Duration, capacity int) (*SubmissionDeduper, error) {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	if capacity <= 0 {
		capacity = 10_000
	}
	cache, err := otter.MustBuilder[int64, uuid.UUID](capacity).
		WithTTL(window).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build dedupe cache: %w", err)
	}
	return &SubmissionDeduper{cache: cache}, nil
}

// Claim records taskID for the request. When a submission is already
// recorded it returns that task id and false.
func (d *SubmissionDeduper) Claim(bgvRequestID int64, taskID uuid.UUID) (uuid.UUID, bool) {
	if d.cache.SetIfAbsent(bgvRequestID, taskID) {
		return taskID, true
	}
	if existing, ok := d.cache.Get(bgvRequestID); ok {
		return existing, false
	}
	// Expired between the two calls.
	d.cache.Set(bgvRequestID, taskID)
	return taskID, true
}

// Release forgets the request so a failed submission can be retried.
func (d *SubmissionDeduper) Release(bgvRequestID int64) {
	d.cache.Delete(bgvRequestID)
}

// Close stops the cache's background goroutines.
func (d *SubmissionDeduper) Close() {
	d.cache.Close()
}
