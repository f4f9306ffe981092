package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/teranos/healthtwin/db"
)

// CreateTestDB opens a migrated SQLite database in a temp dir. A file is used
// rather than :memory: because each pooled connection to :memory: sees its own
// empty database. Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "twin.db"), zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
