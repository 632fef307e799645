package testing

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/teranos/recenthistory/db"
)

// CreateTestDB creates an in-memory SQLite database with the history schema
// migrated under the default table prefix.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return CreateTestDBWithPrefix(t, db.DefaultTablePrefix)
}

// CreateTestDBWithPrefix is CreateTestDB with a custom table prefix.
func CreateTestDBWithPrefix(t *testing.T, prefix string) *sqlx.DB {
	t.Helper()

	conn, err := db.Open(db.MemoryPath, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	if err := db.Migrate(context.Background(), conn, prefix, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return conn
}
