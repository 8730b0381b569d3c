package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/config"
)

func TestOpenStoreAndServe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		DBDriver:          config.DriverSQLite,
		SQLitePath:        filepath.Join(t.TempDir(), "gatherly.db"),
		SQLiteBusyTimeout: time.Second,
		ConflictCacheSize: 8,
		ConflictCacheTTL:  time.Second,
	}

	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("openStore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	handler := newHandler(store, cfg, logger)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from health probe, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity headers, got %d", recorder.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Organization-ID", "org-1")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", recorder.Code)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.Config{DBDriver: "mysql"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
