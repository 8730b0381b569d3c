// Package migration applies versioned schema migrations to a relational
// database.
//
// Migrations are read from an fs.FS (normally an embedded directory) and must
// follow the naming convention {version}_{description}.sql, for example
// "001_initial_schema.sql". Each migration runs in its own transaction and is
// recorded in the schema_migrations table in that same transaction, so a
// failed migration leaves no trace and is retried on the next start.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewExecutor(db, nil), logger)
//	if err := manager.Run(ctx, migrations.SQLite); err != nil {
//		return fmt.Errorf("apply migrations: %w", err)
//	}
package migration
