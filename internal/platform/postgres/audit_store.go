package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/platform/logger"
	"github.com/traqcheck/bgv-agent/internal/store"
)

// AuditStore implements audit.Store on the agent_logs table.
type AuditStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(db *sqlx.DB) *AuditStore {
	return &AuditStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type auditRow struct {
	ID           int64     `db:"id"`
	BGVRequestID int64     `db:"bgv_request_id"`
	Action       string    `db:"action"`
	Message      string    `db:"message"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *auditRow) toEntry() (*audit.Entry, error) {
	metadata := make(map[string]any)
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of audit entry %d: %w", r.ID, err)
		}
	}
	return &audit.Entry{
		ID:           audit.EntryID(r.ID),
		BGVRequestID: r.BGVRequestID,
		Action:       audit.Action(r.Action),
		Message:      r.Message,
		Metadata:     metadata,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}, nil
}

const auditColumns = `id, bgv_request_id, action, message, metadata, created_at, updated_at`

// Create inserts the entry. A zero ID is assigned by the sequence.
func (s *AuditStore) Create(ctx context.Context, entry *audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return store.NewStoreError("audit_log", "create", "validation failed", err)
	}

	if entry.Metadata == nil {
		entry.Metadata = make(map[string]any)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return store.NewStoreError("audit_log", "create", "failed to encode metadata", err)
	}

	now := s.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	var id int64
	if entry.ID == 0 {
		err = s.db.GetContext(ctx, &id, `
			INSERT INTO agent_logs (bgv_request_id, action, message, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			entry.BGVRequestID, string(entry.Action), entry.Message, string(metadata), entry.CreatedAt, entry.UpdatedAt)
	} else {
		err = s.db.GetContext(ctx, &id, `
			INSERT INTO agent_logs (id, bgv_request_id, action, message, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			int64(entry.ID), entry.BGVRequestID, string(entry.Action), entry.Message, string(metadata),
			entry.CreatedAt, entry.UpdatedAt)
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to create audit entry",
			"bgv_request_id", entry.BGVRequestID,
			"action", entry.Action,
			"error", err)
		return MapError(err, nil)
	}

	if entry.ID != 0 {
		// Keep the sequence ahead of ids assigned by the workflow backend.
		if _, err := s.db.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('agent_logs', 'id'), GREATEST((SELECT MAX(id) FROM agent_logs), 1))`,
		); err != nil {
			return MapError(err, nil)
		}
	}

	entry.ID = audit.EntryID(id)
	return nil
}

// Get loads an entry.
func (s *AuditStore) Get(ctx context.Context, id audit.EntryID) (*audit.Entry, error) {
	var row auditRow
	err := s.db.GetContext(ctx, &row, `SELECT `+auditColumns+` FROM agent_logs WHERE id = $1`, int64(id))
	if err != nil {
		return nil, MapError(err, store.ErrAuditLogNotFound)
	}
	return row.toEntry()
}

// Amend merges the set fields into metadata and removes the nil ones in one
// statement.
func (s *AuditStore) Amend(ctx context.Context, id audit.EntryID, fields audit.Fields) error {
	set, removed := splitFields(fields)
	patch, err := json.Marshal(set)
	if err != nil {
		return store.NewStoreError("audit_log", "amend", "failed to encode fields", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_logs
		SET metadata = (COALESCE(metadata, '{}'::jsonb) || $1::jsonb) - $2::text[],
		    updated_at = $3
		WHERE id = $4`,
		string(patch), removed, s.now(), int64(id))
	if err != nil {
		logger.FromContext(ctx).Error("failed to amend audit entry",
			"audit_log_id", id,
			"error", err)
		return MapError(err, nil)
	}
	return CheckRowsAffected(result, store.ErrAuditLogNotFound)
}

// Query returns matching entries, newest first.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if filter.BGVRequestID != 0 {
		args = append(args, filter.BGVRequestID)
		where = append(where, fmt.Sprintf("bgv_request_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		where = append(where, fmt.Sprintf("created_at > $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + auditColumns + ` FROM agent_logs`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, MapError(err, nil)
	}

	out := make([]*audit.Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// splitFields separates keys to set from keys to remove. Removed keys are
// sorted for stable statements.
func splitFields(fields audit.Fields) (map[string]any, []string) {
	set := make(map[string]any, len(fields))
	removed := []string{}
	for k, v := range fields {
		if v == nil {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}
	sort.Strings(removed)
	return set, removed
}

var _ audit.Store = (*AuditStore)(nil)
