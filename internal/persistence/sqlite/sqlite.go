// Package sqlite opens the modernc.org/sqlite backed store.
//
// SQLite has no row level locks. Write transactions are started with
// BEGIN IMMEDIATE and the pool is limited to one connection, so a transaction
// holds the database write lock from its first statement until commit. That
// is strictly stronger than the per session FOR UPDATE used on Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/migration"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/migrations"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/sqlstore"
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Dialect is the sqlstore dialect for modernc.org/sqlite.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
}

// Open opens the database file, applies the embedded migrations and returns
// a ready store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlstore.Store, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	manager := migration.NewManager(migration.NewScanner(), migration.NewExecutor(db, nil), logger)
	if err := manager.Run(ctx, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlstore.New(db, Dialect), nil
}

func buildDSN(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("sqlite path is required")
	}

	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")

	return "file:" + filepath.Clean(path) + "?" + params.Encode(), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
