package database

import (
	"context"
	"database/sql"
	"testing"
)

// SetupTestDB opens a migrated in-memory SQLite database that is closed when the test ends.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := Open(DriverSQLite, ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := Migrate(context.Background(), db, DriverSQLite); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}
