package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Executor applies migrations to a database and tracks them in the
// schema_migrations table.
type Executor struct {
	db     *sql.DB
	rebind func(string) string
}

// NewExecutor creates an Executor. rebind rewrites '?' placeholders for
// drivers that need another style; nil leaves queries untouched.
func NewExecutor(db *sql.DB, rebind func(string) string) *Executor {
	if rebind == nil {
		rebind = func(query string) string { return query }
	}
	return &Executor{db: db, rebind: rebind}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at BIGINT NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		execution_time_ms BIGINT NOT NULL DEFAULT 0
	)`

	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return dbError("", "create schema_migrations table", err)
	}
	return nil
}

// Execute runs a single migration and records it within one transaction.
func (e *Executor) Execute(ctx context.Context, migration Migration, now time.Time) (err error) {
	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return fileError(migration.Version, migration.FilePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(migration.Version, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	started := time.Now()
	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return dbError(migration.Version, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	insertSQL := e.rebind(`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`)
	elapsed := time.Since(started)
	if _, execErr := tx.ExecContext(ctx, insertSQL, migration.Version, now.UTC().UnixMilli(), migration.Checksum, elapsed.Milliseconds()); execErr != nil {
		return dbError(migration.Version, "record migration", execErr)
	}

	if err = tx.Commit(); err != nil {
		return dbError(migration.Version, "commit transaction", err)
	}
	return nil
}

// IsVersionApplied checks if a specific migration version has been applied
func (e *Executor) IsVersionApplied(ctx context.Context, version string) (bool, error) {
	var exists int
	err := e.db.QueryRowContext(ctx, e.rebind(`SELECT 1 FROM schema_migrations WHERE version = ?`), version).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbError(version, "check version applied", err)
	}
	return true, nil
}

// AppliedVersions returns all applied migrations ordered by version.
func (e *Executor) AppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY version ASC`)
	if err != nil {
		return nil, dbError("", "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			version, checksum    string
			appliedAt, execution int64
		)
		if err := rows.Scan(&version, &appliedAt, &checksum, &execution); err != nil {
			return nil, dbError("", "scan applied migration", err)
		}
		applied = append(applied, AppliedMigration{
			Version:       version,
			AppliedAt:     time.UnixMilli(appliedAt).UTC(),
			ExecutionTime: time.Duration(execution) * time.Millisecond,
			Checksum:      checksum,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("", "iterate applied migrations", err)
	}
	return applied, nil
}
