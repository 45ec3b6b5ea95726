//go:build integration

package testdb

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/traqcheck/bgv-agent/internal/redact"
)

// Environment variables consulted for the test database, in order.
const (
	EnvTestDatabaseURL = "BGV_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

// DatabaseURL returns the first configured test database URL.
func DatabaseURL() string {
	for _, name := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsCIEnvironment reports whether the tests run under a CI system.
func IsCIEnvironment() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// Open connects to the test database and closes it when the test ends.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		if IsCIEnvironment() {
			t.Fatalf("no test database configured; set %s", EnvTestDatabaseURL)
		}
		t.Skipf("%s not set, skipping database test", EnvTestDatabaseURL)
	}

	db, err := sqlx.Open("pgx", url)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to reach test database: %s", redact.Error(err))
	}
	return db
}
