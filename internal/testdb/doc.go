//go:build integration

// Package testdb provides helpers for tests that need a real PostgreSQL
// database.
//
// Tests call Open, which skips the test when no database URL is configured
// outside CI and fails it inside CI, where a missing database is a setup
// error. WithTx runs a test body in a transaction that is always rolled back,
// so tests leave no rows behind and can run in parallel:
//
//	func TestSomething(t *testing.T) {
//		db := testdb.Open(t)
//		testdb.WithTx(t, db, func(t *testing.T, tx *sqlx.Tx) {
//			store := postgres.NewPostgresTaskStore(tx)
//			// ...
//		})
//	}
//
// The URL is read from BGV_TEST_DATABASE_URL, then DATABASE_URL.
package testdb
