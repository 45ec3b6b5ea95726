package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNilStore is returned when an Amender is built without a store.
var ErrNilStore = errors.New("audit store cannot be nil")

// Amender applies field-level overwrites to audit entries. Writes for one
// entry are serialized through the Locker, and the metadata invariants are
// enforced on every write:
//   - admin_notified, once true, is never unset
//   - delivered=true clears failure_reason
//   - a failure_reason forces delivered=false
type Amender struct {
	store  Store
	locker Locker
	logger *slog.Logger
}

// NewAmender creates an Amender. A nil locker defaults to an in-process
// KeyedMutex.
func NewAmender(store Store, locker Locker, logger *slog.Logger) (*Amender, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Amender{
		store:  store,
		locker: locker,
		logger: logger.With("component", "audit_amender"),
	}, nil
}

// Store returns the underlying store.
func (a *Amender) Store() Store {
	return a.store
}

// Amend overwrites fields of the entry under its lock.
func (a *Amender) Amend(ctx context.Context, id EntryID, fields Fields) error {
	return a.Update(ctx, id, func(*Entry) (Fields, error) {
		return fields, nil
	})
}

// Update runs fn against the current entry while holding the entry's lock and
// applies the returned fields. fn returning nil fields skips the write.
func (a *Amender) Update(ctx context.Context, id EntryID, fn func(current *Entry) (Fields, error)) error {
	unlock, err := a.locker.Lock(ctx, LockKey(id))
	if err != nil {
		return fmt.Errorf("failed to lock audit entry %d: %w", id, err)
	}
	defer unlock()

	current, err := a.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load audit entry %d: %w", id, err)
	}

	fields, err := fn(current.Clone())
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	fields = Normalize(current, fields)
	if err := a.store.Amend(ctx, id, fields); err != nil {
		return fmt.Errorf("failed to amend audit entry %d: %w", id, err)
	}

	a.logger.Debug("amended audit entry",
		"audit_log_id", id,
		"keys", len(fields))
	return nil
}

// Normalize returns a copy of fields adjusted so that applying it to current
// keeps the metadata invariants.
func Normalize(current *Entry, fields Fields) Fields {
	out := make(Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}

	if current != nil && current.Bool(KeyAdminNotified) {
		if v, ok := out[KeyAdminNotified]; ok && v != true {
			delete(out, KeyAdminNotified)
		}
	}

	if out[KeyDelivered] == true {
		out[KeyFailureReason] = nil
	} else if reason, ok := out[KeyFailureReason].(string); ok && reason != "" {
		out[KeyDelivered] = false
	}

	return out
}

// DeliveredFields marks an entry as successfully delivered.
func DeliveredFields(channel string, attempts int, at time.Time) Fields {
	return Fields{
		KeyDelivered:       true,
		KeyDeliveryChannel: channel,
		KeyDeliveredAt:     at.UTC().Format(time.RFC3339),
		KeyAttempts:        attempts,
		KeyFailureReason:   nil,
	}
}

// EscalatedFields marks an entry as terminally failed.
func EscalatedFields(reason string, adminNotified bool, attempts int, at time.Time) Fields {
	return Fields{
		KeyDelivered:     false,
		KeyFailureReason: reason,
		KeyAdminNotified: adminNotified,
		KeyAttempts:      attempts,
		KeyEscalatedAt:   at.UTC().Format(time.RFC3339),
	}
}
