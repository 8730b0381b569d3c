package application

import (
	"context"
	"errors"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

// lockLiveSession locks the session row and reports missing or soft deleted
// sessions as not found.
func lockLiveSession(ctx context.Context, tx persistence.Tx, sessionID string) (participation.Session, error) {
	session, err := tx.LockSession(ctx, sessionID)
	if errors.Is(err, persistence.ErrNotFound) {
		return participation.Session{}, notFound("session not found")
	}
	if err != nil {
		return participation.Session{}, err
	}
	if session.Deleted() {
		return participation.Session{}, notFound("session not found")
	}
	return session, nil
}

func loadParticipation(ctx context.Context, tx persistence.Tx, id string) (participation.Participation, error) {
	p, err := tx.GetParticipation(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return participation.Participation{}, notFound("participation not found")
	}
	return p, err
}

// findActive returns the active participation of the user in the session, or
// ok=false when there is none.
func findActive(ctx context.Context, tx persistence.Tx, sessionID, userID string) (participation.Participation, bool, error) {
	p, err := tx.FindActiveParticipation(ctx, sessionID, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		return participation.Participation{}, false, nil
	}
	if err != nil {
		return participation.Participation{}, false, err
	}
	return p, true, nil
}

// userConflicts lists the other active bookings of userIDs at the given instant.
func userConflicts(ctx context.Context, tx persistence.Tx, userIDs []string, sessionID string, at time.Time) ([]participation.UserConflict, error) {
	bookings, err := tx.ListActiveBookings(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return participation.DetectConflicts(bookings, sessionID, at), nil
}

// sessionConflicts runs the conflict detector for every active participant of
// the session against a candidate time.
func sessionConflicts(ctx context.Context, tx persistence.Tx, sessionID string, at time.Time) ([]participation.UserConflict, error) {
	userIDs, err := tx.ListActiveUserIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []participation.UserConflict{}, nil
	}
	conflicts, err := userConflicts(ctx, tx, userIDs, sessionID, at)
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []participation.UserConflict{}
	}
	return conflicts, nil
}
