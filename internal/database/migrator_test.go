package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_add_index.sql": "CREATE INDEX i ON t(a);",
		"001_init.sql":      "CREATE TABLE t (a INT);",
		"notes.txt":         "not a migration",
		"unversioned.sql":   "SELECT 1;",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	m := NewMigrator(nil, "postgres")
	migrations, err := m.LoadMigrations(dir)
	if err != nil {
		t.Fatalf("LoadMigrations failed: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Errorf("Migrations out of order: %s, %s", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].SQL != files["001_init.sql"] {
		t.Errorf("Unexpected migration content: %q", migrations[0].SQL)
	}
}

func TestMigratorRunSkipsSQLite(t *testing.T) {
	db := setupTestDB(t)
	// The sqlite schema is created at connect time; Run must be a no-op
	// rather than attempting the postgres-only migration files.
	if err := NewMigrator(db.Conn(), db.Type()).Run("does-not-exist"); err != nil {
		t.Errorf("Expected sqlite Run to be a no-op, got %v", err)
	}
}
