package testutil

import (
	"testing"

	"dms-go/internal/database"
	"dms-go/internal/dms"
)

// NewTestDatabase creates a new in-memory SQLite database with all
// migrations applied. It is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) dms.Database {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	db, err := database.NewSQLiteDatabaseFromDB(sqlDB, ":memory:")
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to wrap database: %v", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
