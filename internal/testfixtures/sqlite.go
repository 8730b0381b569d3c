package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/sqlite"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/sqlstore"
)

// SQLiteHarness provides a store backed by a temporary, migrated SQLite file
// for integration-style tests.
type SQLiteHarness struct {
	Store *sqlstore.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "gatherly.db")
	store, err := sqlite.Open(context.Background(), sqlite.Config{Path: path}, nil)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}
