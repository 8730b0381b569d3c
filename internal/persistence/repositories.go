package persistence

import (
	"context"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

// ParticipationFilter narrows participant listings.
type ParticipationFilter struct {
	Statuses []participation.Status
}

// Store is the relational store behind the participation services. Every
// mutation runs inside WithinTx; the remaining methods are unlocked reads.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetSession(ctx context.Context, id string) (participation.Session, error)
	GetParticipation(ctx context.Context, id string) (participation.Participation, error)
	ListParticipations(ctx context.Context, sessionID string, filter ParticipationFilter) ([]participation.Participation, error)
	Close() error
}

// Tx exposes the statements available inside a transaction.
type Tx interface {
	CreateSession(ctx context.Context, session participation.Session) error
	UpdateSession(ctx context.Context, session participation.Session) error

	// LockSession reads the session row and holds an exclusive lock on it
	// until the transaction ends. Soft deleted rows are returned as is.
	LockSession(ctx context.Context, id string) (participation.Session, error)

	GetParticipation(ctx context.Context, id string) (participation.Participation, error)
	FindActiveParticipation(ctx context.Context, sessionID, userID string) (participation.Participation, error)
	CountActive(ctx context.Context, sessionID string) (participation.Counts, error)
	InsertParticipation(ctx context.Context, p participation.Participation) error
	UpdateParticipation(ctx context.Context, p participation.Participation) error

	// NextWaitlistCandidate returns the earliest waitlisted participation of
	// the session by (joined_at, id), skipping rows locked by other
	// transactions and the ids in exclude.
	NextWaitlistCandidate(ctx context.Context, sessionID string, exclude []string) (participation.Participation, error)

	// ListActiveBookings returns the active participations of the given users
	// in sessions that are not soft deleted.
	ListActiveBookings(ctx context.Context, userIDs []string) ([]participation.Booking, error)
	ListActiveUserIDs(ctx context.Context, sessionID string) ([]string, error)

	// WaitlistRank counts waitlisted rows ordered before (joinedAt, participationID).
	WaitlistRank(ctx context.Context, sessionID string, joinedAt time.Time, participationID string) (int, error)
}
