package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/lounge-reconciler/internal/docstore/sqlite"
)

// SQLiteHarness provides a migrated SQLite document store backed by a
// temporary file for integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store

	tb      testing.TB
	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// Put seeds a document and fails the test on error. It satisfies Seeder.
func (h *SQLiteHarness) Put(collection, id string, fields map[string]any) {
	h.tb.Helper()
	if err := h.Store.Put(context.Background(), collection, id, fields); err != nil {
		h.tb.Fatalf("seed %s/%s: %v", collection, id, err)
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "reconciler.db")

	store, err := sqlite.Open(context.Background(), path)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		tb:    tb,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
