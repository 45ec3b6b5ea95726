// Package postgres implements the audit, BGV request and task stores on
// PostgreSQL, and owns the embedded goose migrations that create their
// tables.
//
// Audit metadata lives in a JSONB column. Amendments are applied in a single
// UPDATE that merges the set keys and removes the cleared ones, so concurrent
// writers to different keys of one entry never lose each other's fields.
package postgres
