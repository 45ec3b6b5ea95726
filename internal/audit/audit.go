// Package audit records what the agent did for a BGV request.
//
// Entries are appended once and then amended in place: delivery outcome,
// failure reason and the admin-notified flag are field-level overwrites of
// the entry's metadata, keyed by the entry id. Amendments for one id are
// serialized through a Locker.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EntryID identifies an audit log entry. It is assigned by the store, or by
// the workflow backend when it created the entry itself.
type EntryID int64

// Action is the kind of agent activity an entry records.
type Action string

// Known actions
const (
	ActionAnalysis            Action = "analysis"
	ActionRequestSent         Action = "request_sent"
	ActionReminderSent        Action = "reminder_sent"
	ActionCredentialsDelivery Action = "credentials_delivery"
)

// Metadata keys written by the delivery and escalation paths.
const (
	KeyDelivered         = "delivered"
	KeyDeliveryChannel   = "delivery_channel"
	KeyDeliveredAt       = "delivered_at"
	KeyFailureReason     = "failure_reason"
	KeyAdminNotified     = "admin_notified"
	KeyNotificationError = "notification_error"
	KeyEscalatedAt       = "escalated_at"
	KeyAttempts          = "attempts"
	KeyTrigger           = "trigger"
	KeyDaysPending       = "days_pending"
	KeyCandidateEmail    = "candidate_email"
)

// ErrInvalidEntry is returned when an entry is missing required fields.
var ErrInvalidEntry = errors.New("invalid audit log entry")

// Entry is one audit log record.
type Entry struct {
	ID           EntryID        `json:"id"`
	BGVRequestID int64          `json:"bgv_request_id"`
	Action       Action         `json:"action"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate checks the fields required to persist an entry.
func (e *Entry) Validate() error {
	if e.BGVRequestID <= 0 {
		return fmt.Errorf("%w: bgv_request_id must be positive", ErrInvalidEntry)
	}
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEntry)
	}
	return nil
}

// Bool returns a boolean metadata value, false when absent.
func (e *Entry) Bool(key string) bool {
	v, _ := e.Metadata[key].(bool)
	return v
}

// String returns a string metadata value, empty when absent.
func (e *Entry) String(key string) string {
	v, _ := e.Metadata[key].(string)
	return v
}

// Clone returns a deep copy of the entry's top-level metadata.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Metadata = make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// Fields is a partial metadata update. A nil value removes the key.
type Fields map[string]any

// Apply overwrites metadata with the fields and returns the result.
func (f Fields) Apply(metadata map[string]any) map[string]any {
	if metadata == nil {
		metadata = make(map[string]any, len(f))
	}
	for k, v := range f {
		if v == nil {
			delete(metadata, k)
			continue
		}
		metadata[k] = v
	}
	return metadata
}

// Filter selects entries for Query. Zero fields match everything.
type Filter struct {
	BGVRequestID int64
	Action       Action
	CreatedAfter time.Time
	Limit        int
}

// Matches reports whether the entry satisfies the filter.
func (f Filter) Matches(e *Entry) bool {
	if f.BGVRequestID != 0 && e.BGVRequestID != f.BGVRequestID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.CreatedAfter.IsZero() && !e.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	return true
}

// Store persists audit entries.
type Store interface {
	// Create persists a new entry and assigns its ID when it is zero.
	Create(ctx context.Context, entry *Entry) error

	// Get retrieves an entry.
	// Returns store.ErrAuditLogNotFound if the id is unknown.
	Get(ctx context.Context, id EntryID) (*Entry, error)

	// Amend overwrites the given metadata fields.
	// Returns store.ErrAuditLogNotFound if the id is unknown.
	Amend(ctx context.Context, id EntryID, fields Fields) error

	// Query returns matching entries, newest first.
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
}

// Locker serializes work on a key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey is the Locker key for an entry.
func LockKey(id EntryID) string {
	return fmt.Sprintf("audit:%d", id)
}
