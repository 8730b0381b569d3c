package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager coordinates scanning and applying migrations.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(scanner *Scanner, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		logger:   logger.With("component", "migration"),
		now:      time.Now,
	}
}

// Run applies every pending migration in fsys in version order.
func (m *Manager) Run(ctx context.Context, fsys fs.FS) error {
	started := time.Now()

	status, err := m.Status(ctx, fsys)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "schema state",
		"current_version", status.CurrentVersion,
		"applied", len(status.AppliedMigrations),
		"pending", len(status.PendingMigrations),
	)

	for i, migration := range status.PendingMigrations {
		logger := m.logger.With("version", migration.Version, "file", migration.FilePath)
		logger.InfoContext(ctx, "applying migration",
			"description", migration.Description,
			"step", i+1,
			"total", len(status.PendingMigrations),
		)

		if err := m.executor.Execute(ctx, migration, m.now()); err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return fileError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
	}

	if len(status.PendingMigrations) > 0 {
		m.logger.InfoContext(ctx, "migrations applied",
			"count", len(status.PendingMigrations),
			"duration", time.Since(started),
		)
	}
	return nil
}

// Status compares fsys with the schema_migrations table. Applied migrations
// whose file content changed are reported as ErrChecksumMismatch.
func (m *Manager) Status(ctx context.Context, fsys fs.FS) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("initialize version table: %w", err)
	}

	available, err := m.scanner.Scan(fsys)
	if err != nil {
		return Status{}, fmt.Errorf("scan migrations: %w", err)
	}

	applied, err := m.executor.AppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("get applied versions: %w", err)
	}

	checksums := make(map[string]string, len(applied))
	for _, a := range applied {
		checksums[a.Version] = a.Checksum
	}

	status := Status{AppliedMigrations: applied}
	for _, migration := range available {
		checksum, ok := checksums[migration.Version]
		if !ok {
			status.PendingMigrations = append(status.PendingMigrations, migration)
			continue
		}
		if checksum != "" && checksum != migration.Checksum {
			return Status{}, fileError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		status.CurrentVersion = migration.Version
	}

	return status, nil
}
