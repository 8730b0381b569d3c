// Package postgres opens the pgx backed store. Session rows are locked with
// SELECT ... FOR UPDATE and waitlist candidates are claimed with
// FOR UPDATE SKIP LOCKED.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/migration"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/migrations"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence/sqlstore"
)

const uniqueViolation = "23505"

// Config configures the Postgres store.
type Config struct {
	DSN          string
	MaxOpenConns int
}

// Dialect is the sqlstore dialect for Postgres.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Numbered:          true,
	LockSuffix:        " FOR UPDATE",
	SkipLockedSuffix:  " FOR UPDATE SKIP LOCKED",
	TxOptions:         &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	IsUniqueViolation: isUniqueViolation,
}

// Open connects to Postgres, applies the embedded migrations and returns a
// ready store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlstore.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}

	manager := migration.NewManager(migration.NewScanner(), migration.NewExecutor(db, Dialect.Rebind), logger)
	if err := manager.Run(ctx, migrations.Postgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlstore.New(db, Dialect), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
