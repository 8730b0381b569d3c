package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements persistence.Store on top of a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ persistence.Store = (*Store)(nil)

// New wraps db using the given dialect. The caller is expected to have
// applied the schema migrations already.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &tx{q: sqlTx, dialect: s.dialect}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// GetSession reads a session without locking it.
func (s *Store) GetSession(ctx context.Context, id string) (participation.Session, error) {
	return getSession(ctx, s.db, s.dialect, id, "")
}

// GetParticipation reads a participation without locking it.
func (s *Store) GetParticipation(ctx context.Context, id string) (participation.Participation, error) {
	return getParticipation(ctx, s.db, s.dialect, id)
}

// ListParticipations returns the session's participations ordered by
// (joined_at, id), optionally restricted to some statuses.
func (s *Store) ListParticipations(ctx context.Context, sessionID string, filter persistence.ParticipationFilter) ([]participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE session_id = ?`
	args := []any{sessionID}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY joined_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()

	var result []participation.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participations: %w", err)
	}
	return result, nil
}

func (s *Store) mapError(err error) error {
	return mapError(s.dialect, err)
}

func mapError(dialect Dialect, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %w", persistence.ErrNotFound, err)
	case dialect.IsUniqueViolation != nil && dialect.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", persistence.ErrDuplicate, err)
	}
	return err
}

func getSession(ctx context.Context, q queryer, dialect Dialect, id, suffix string) (participation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?` + suffix
	session, err := scanSession(q.QueryRowContext(ctx, dialect.Rebind(query), id))
	if err != nil {
		return participation.Session{}, mapError(dialect, fmt.Errorf("get session %s: %w", id, err))
	}
	return session, nil
}

func getParticipation(ctx context.Context, q queryer, dialect Dialect, id string) (participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE id = ?`
	p, err := scanParticipation(q.QueryRowContext(ctx, dialect.Rebind(query), id))
	if err != nil {
		return participation.Participation{}, mapError(dialect, fmt.Errorf("get participation %s: %w", id, err))
	}
	return p, nil
}

func activeStatusArgs() (string, []any) {
	args := make([]any, 0, len(participation.ActiveStatuses))
	for _, status := range participation.ActiveStatuses {
		args = append(args, string(status))
	}
	return placeholders(len(args)), args
}

func joinArgs(head []any, tail ...[]any) []any {
	out := append([]any(nil), head...)
	for _, t := range tail {
		out = append(out, t...)
	}
	return out
}
