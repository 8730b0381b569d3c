package participation

import (
	"sort"
	"time"
)

// Booking is an active participation of a user joined with the wall clock
// time of the session it belongs to.
type Booking struct {
	UserID       string
	SessionID    string
	SessionTitle string
	DateTime     time.Time
}

// DetectConflicts returns one conflict per booking that lands on exactly the
// candidate instant in a session other than excludeSessionID. Results are
// ordered by user then session so callers get stable output.
func DetectConflicts(bookings []Booking, excludeSessionID string, candidate time.Time) []UserConflict {
	if len(bookings) == 0 || candidate.IsZero() {
		return nil
	}

	seen := make(map[[2]string]struct{}, len(bookings))
	conflicts := make([]UserConflict, 0)
	for _, booking := range bookings {
		if booking.SessionID == excludeSessionID {
			continue
		}
		if !booking.DateTime.Equal(candidate) {
			continue
		}
		key := [2]string{booking.UserID, booking.SessionID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		conflicts = append(conflicts, UserConflict{
			UserID:                  booking.UserID,
			ConflictingSessionID:    booking.SessionID,
			ConflictingSessionTitle: booking.SessionTitle,
		})
	}

	if len(conflicts) == 0 {
		return nil
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].UserID == conflicts[j].UserID {
			return conflicts[i].ConflictingSessionID < conflicts[j].ConflictingSessionID
		}
		return conflicts[i].UserID < conflicts[j].UserID
	})
	return conflicts
}
