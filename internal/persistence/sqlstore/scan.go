package sqlstore

import (
	"database/sql"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

const sessionColumns = `id, organization_id, activity_id, title, date_time, max_capacity, max_waitlist,
	join_mode, status, deleted_at, created_at, updated_at`

const participationColumns = `id, session_id, user_id, status, attendance, payment, joined_at,
	cancelled_at, reviewed_by, reviewed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (participation.Session, error) {
	var (
		session                        participation.Session
		activityID                     sql.NullString
		dateTime, createdAt, updatedAt int64
		deletedAt                      sql.NullInt64
		joinMode, status               string
	)
	if err := row.Scan(
		&session.ID,
		&session.OrganizationID,
		&activityID,
		&session.Title,
		&dateTime,
		&session.MaxCapacity,
		&session.MaxWaitlist,
		&joinMode,
		&status,
		&deletedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return participation.Session{}, err
	}

	session.ActivityID = fromNullString(activityID)
	session.DateTime = fromMillis(dateTime)
	session.JoinMode = participation.JoinMode(joinMode)
	session.Status = participation.SessionStatus(status)
	session.DeletedAt = fromNullMillis(deletedAt)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

func scanParticipation(row rowScanner) (participation.Participation, error) {
	var (
		p                              participation.Participation
		status, attendance, payment    string
		joinedAt, createdAt, updatedAt int64
		cancelledAt, reviewedAt        sql.NullInt64
		reviewedBy                     sql.NullString
	)
	if err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.UserID,
		&status,
		&attendance,
		&payment,
		&joinedAt,
		&cancelledAt,
		&reviewedBy,
		&reviewedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return participation.Participation{}, err
	}

	p.Status = participation.Status(status)
	p.Attendance = participation.Attendance(attendance)
	p.Payment = participation.Payment(payment)
	p.JoinedAt = fromMillis(joinedAt)
	p.CancelledAt = fromNullMillis(cancelledAt)
	p.ReviewedBy = fromNullString(reviewedBy)
	p.ReviewedAt = fromNullMillis(reviewedAt)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
