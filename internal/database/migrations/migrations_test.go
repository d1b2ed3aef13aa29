package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunAppliesEachMigrationOnce(t *testing.T) {
	db := testDB(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	count, err := Count(db)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != len(registry) {
		t.Errorf("applied %d migrations, want %d", count, len(registry))
	}

	// Running again is a no-op.
	if err := Run(db, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	again, _ := Count(db)
	if again != count {
		t.Errorf("second run changed the count: %d -> %d", count, again)
	}
}

func TestLatestVersion(t *testing.T) {
	db := testDB(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	version, err := LatestVersion(db)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if version == "" {
		t.Error("expected a version after migrating")
	}

	for _, m := range registry {
		if m.Version > version {
			t.Errorf("LatestVersion = %q, but %q is registered", version, m.Version)
		}
	}
}
