package database

import (
	"testing"
)

// setupTestDB opens an in-memory SQLite database with the full schema.
// Repo behavior is dialect-neutral except for vector search, which the
// tests cover through the in-memory index path instead.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(Config{Type: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}
