// Package storetest opens a migrated Postgres database for tests.
package storetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"schoollib/internal/store"
)

// Open connects using the PG* environment variables, applies migrations
// and empties every table. The test is skipped when Postgres is unreachable.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env("PGHOST", "localhost"),
		env("PGPORT", "5432"),
		env("PGUSER", "user"),
		env("PGPASSWORD", "password"),
		env("PGDATABASE", "testdb"),
	)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := store.Migrate(ctx, db, Logger()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE users, credentials, books, loans, reservations, events`); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
