package testutil

import (
	"database/sql"
	"testing"

	"github.com/mhayashi-dev/prodtrack/internal/db"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// NewTestDB creates an in-memory SQLite database with all migrations applied.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// NewTestEngine creates a query engine over a fresh in-memory database
// using the default entity registry.
func NewTestEngine(t *testing.T) *query.Engine {
	t.Helper()
	return query.NewEngine(NewTestDB(t), schema.Default())
}
