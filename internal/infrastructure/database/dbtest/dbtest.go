// Package dbtest opens migrated in-memory databases for package tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
	_ "github.com/nerrad567/accessguard-core/migrations" // registers the schema
)

// Open returns an in-memory database with every migration applied. It is
// closed when the test ends.
func Open(t testing.TB) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
