package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

type tx struct {
	q       queryer
	dialect Dialect
}

var _ persistence.Tx = (*tx)(nil)

func (t *tx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := t.q.ExecContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, mapError(t.dialect, fmt.Errorf("%s: %w", op, err))
	}
	return res, nil
}

func (t *tx) CreateSession(ctx context.Context, session participation.Session) error {
	_, err := t.exec(ctx, "insert session", `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.OrganizationID,
		toNullString(session.ActivityID),
		session.Title,
		toMillis(session.DateTime),
		session.MaxCapacity,
		session.MaxWaitlist,
		string(session.JoinMode),
		string(session.Status),
		toNullMillis(session.DeletedAt),
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	)
	return err
}

func (t *tx) UpdateSession(ctx context.Context, session participation.Session) error {
	res, err := t.exec(ctx, "update session", `UPDATE sessions SET
		activity_id = ?, title = ?, date_time = ?, max_capacity = ?, max_waitlist = ?,
		join_mode = ?, status = ?, deleted_at = ?, updated_at = ?
		WHERE id = ?`,
		toNullString(session.ActivityID),
		session.Title,
		toMillis(session.DateTime),
		session.MaxCapacity,
		session.MaxWaitlist,
		string(session.JoinMode),
		string(session.Status),
		toNullMillis(session.DeletedAt),
		toMillis(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "session", session.ID)
}

func (t *tx) LockSession(ctx context.Context, id string) (participation.Session, error) {
	return getSession(ctx, t.q, t.dialect, id, t.dialect.LockSuffix)
}

func (t *tx) GetParticipation(ctx context.Context, id string) (participation.Participation, error) {
	return getParticipation(ctx, t.q, t.dialect, id)
}

func (t *tx) FindActiveParticipation(ctx context.Context, sessionID, userID string) (participation.Participation, error) {
	in, statuses := activeStatusArgs()
	query := `SELECT ` + participationColumns + ` FROM participations
		WHERE session_id = ? AND user_id = ? AND status IN (` + in + `)
		ORDER BY joined_at ASC, id ASC LIMIT 1`
	row := t.q.QueryRowContext(ctx, t.dialect.Rebind(query), joinArgs([]any{sessionID, userID}, statuses)...)
	p, err := scanParticipation(row)
	if err != nil {
		return participation.Participation{}, mapError(t.dialect, fmt.Errorf("find active participation: %w", err))
	}
	return p, nil
}

func (t *tx) CountActive(ctx context.Context, sessionID string) (participation.Counts, error) {
	in, statuses := activeStatusArgs()
	query := `SELECT status, COUNT(*) FROM participations
		WHERE session_id = ? AND status IN (` + in + `)
		GROUP BY status`
	rows, err := t.q.QueryContext(ctx, t.dialect.Rebind(query), joinArgs([]any{sessionID}, statuses)...)
	if err != nil {
		return participation.Counts{}, fmt.Errorf("count participations: %w", err)
	}
	defer rows.Close()

	var counts participation.Counts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return participation.Counts{}, fmt.Errorf("scan participation count: %w", err)
		}
		switch participation.Status(status) {
		case participation.StatusJoined:
			counts.Joined = n
		case participation.StatusWaitlisted:
			counts.Waitlisted = n
		case participation.StatusPending:
			counts.Pending = n
		}
	}
	if err := rows.Err(); err != nil {
		return participation.Counts{}, fmt.Errorf("iterate participation counts: %w", err)
	}
	return counts, nil
}

func (t *tx) InsertParticipation(ctx context.Context, p participation.Participation) error {
	_, err := t.exec(ctx, "insert participation", `INSERT INTO participations (`+participationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.SessionID,
		p.UserID,
		string(p.Status),
		string(p.Attendance),
		string(p.Payment),
		toMillis(p.JoinedAt),
		toNullMillis(p.CancelledAt),
		toNullString(p.ReviewedBy),
		toNullMillis(p.ReviewedAt),
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	return err
}

func (t *tx) UpdateParticipation(ctx context.Context, p participation.Participation) error {
	res, err := t.exec(ctx, "update participation", `UPDATE participations SET
		status = ?, attendance = ?, payment = ?, joined_at = ?, cancelled_at = ?,
		reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(p.Status),
		string(p.Attendance),
		string(p.Payment),
		toMillis(p.JoinedAt),
		toNullMillis(p.CancelledAt),
		toNullString(p.ReviewedBy),
		toNullMillis(p.ReviewedAt),
		toMillis(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "participation", p.ID)
}

func (t *tx) NextWaitlistCandidate(ctx context.Context, sessionID string, exclude []string) (participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations
		WHERE session_id = ? AND status = ?`
	args := []any{sessionID, string(participation.StatusWaitlisted)}
	if len(exclude) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(exclude)) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += ` ORDER BY joined_at ASC, id ASC LIMIT 1` + t.dialect.SkipLockedSuffix

	p, err := scanParticipation(t.q.QueryRowContext(ctx, t.dialect.Rebind(query), args...))
	if err != nil {
		return participation.Participation{}, mapError(t.dialect, fmt.Errorf("next waitlist candidate: %w", err))
	}
	return p, nil
}

func (t *tx) ListActiveBookings(ctx context.Context, userIDs []string) ([]participation.Booking, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	in, statuses := activeStatusArgs()
	users := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		users = append(users, id)
	}

	query := `SELECT p.user_id, s.id, s.title, s.date_time
		FROM participations p
		JOIN sessions s ON s.id = p.session_id
		WHERE p.user_id IN (` + placeholders(len(users)) + `)
		AND p.status IN (` + in + `)
		AND s.deleted_at IS NULL`

	rows, err := t.q.QueryContext(ctx, t.dialect.Rebind(query), joinArgs(users, statuses)...)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	defer rows.Close()

	var bookings []participation.Booking
	for rows.Next() {
		var (
			b        participation.Booking
			dateTime int64
		)
		if err := rows.Scan(&b.UserID, &b.SessionID, &b.SessionTitle, &dateTime); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.DateTime = fromMillis(dateTime)
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

func (t *tx) ListActiveUserIDs(ctx context.Context, sessionID string) ([]string, error) {
	in, statuses := activeStatusArgs()
	query := `SELECT DISTINCT user_id FROM participations
		WHERE session_id = ? AND status IN (` + in + `)
		ORDER BY user_id`
	rows, err := t.q.QueryContext(ctx, t.dialect.Rebind(query), joinArgs([]any{sessionID}, statuses)...)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

func (t *tx) WaitlistRank(ctx context.Context, sessionID string, joinedAt time.Time, participationID string) (int, error) {
	at := toMillis(joinedAt)
	query := `SELECT COUNT(*) FROM participations
		WHERE session_id = ? AND status = ?
		AND (joined_at < ? OR (joined_at = ? AND id < ?))`

	var rank int
	err := t.q.QueryRowContext(ctx, t.dialect.Rebind(query),
		sessionID, string(participation.StatusWaitlisted), at, at, participationID,
	).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("waitlist rank: %w", err)
	}
	return rank, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, kind, id)
	}
	return nil
}
