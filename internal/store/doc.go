// Package store holds the persistence contracts shared by the postgres and
// in-memory adapters: the DBTX abstraction, the BGV request store and the
// common store errors.
package store
