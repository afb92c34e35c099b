package store

import (
	"context"
	"path/filepath"
	"testing"
)

// openTestDB opens a fresh, fully migrated sqlite database backed by a
// file under t.TempDir() (sqlite's WAL mode wants a real file, not
// ":memory:", to behave like production).
func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alphred.db")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
