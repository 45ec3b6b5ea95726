package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the postgres and in-memory adapters. The API maps
// them to status codes, so adapters wrap driver errors into one of these.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicate     = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	ErrAuditLogNotFound   = fmt.Errorf("%w: audit log entry", ErrNotFound)
	ErrBGVRequestNotFound = fmt.Errorf("%w: bgv request", ErrNotFound)
	ErrTaskNotFound       = fmt.Errorf("%w: task", ErrNotFound)
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError reports whether err wraps ErrDuplicate.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError records which entity and operation an adapter error came from.
type StoreError struct {
	Entity string
	Op     string
	Reason string
	Err    error
}

func (e *StoreError) Error() string {
	msg := e.Entity + " " + e.Op + ": " + e.Reason
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the entity ("audit_log", "bgv_request") and
// operation ("create", "amend") it failed in.
func NewStoreError(entity, op, reason string, err error) *StoreError {
	return &StoreError{Entity: entity, Op: op, Reason: reason, Err: err}
}
