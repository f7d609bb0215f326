// Package testutil provides the Postgres fixture for store integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/fraudlens/paysim-monitor/migrations"
)

// containerURL is set by the integration build to start a throwaway
// container when POSTGRES_URL is unset.
var containerURL func(t *testing.T) string

// appTables are emptied after each test. goose_db_version is left alone so
// the migrations are not replayed.
var appTables = []string{"transactions"}

// PGTest returns a migrated database for the test, or skips it when none is
// available. Application tables are truncated, with their id sequences
// reset, when the test ends so every test sees ids starting at 1.
func PGTest(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" && containerURL != nil {
		dsn = containerURL(t)
	}
	if dsn == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: %v", err)
	}

	t.Cleanup(func() {
		if err := Truncate(context.Background(), db); err != nil {
			t.Logf("pgtest: truncate: %v", err)
		}
		_ = db.Close()
	})
	return db
}

// Truncate empties the application tables and restarts their identities.
func Truncate(ctx context.Context, db *sql.DB) error {
	for _, table := range appTables {
		// Table names are package constants.
		if _, err := db.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY"); err != nil { // #nosec G202
			return err
		}
	}
	return nil
}
