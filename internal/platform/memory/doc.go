// Package memory provides map-backed implementations of the audit, BGV
// request and task stores. They are used when no database is configured and
// in tests.
package memory
