package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

// Principal represents the caller invoking a service method.
type Principal struct {
	UserID         string
	OrganizationID string
	IsAdmin        bool
}

// CreateSessionInput captures caller provided session fields.
type CreateSessionInput struct {
	OrganizationID string
	ActivityID     *string
	Title          string
	DateTime       time.Time
	MaxCapacity    int
	MaxWaitlist    int
	JoinMode       participation.JoinMode
}

// RescheduleParams wraps the data required to move a session in time.
type RescheduleParams struct {
	SessionID string
	DateTime  time.Time
	// Force applies the new time even when participants would be double booked.
	Force bool
}

// MoveResult is returned by MoveParticipant.
type MoveResult struct {
	Cancelled participation.Participation
	Created   participation.Participation
}

// AttendanceUpdate sets the attendance mark of one participation.
type AttendanceUpdate struct {
	ParticipationID string
	Attendance      participation.Attendance
}

// NewID returns a time ordered UUID so ids created later sort later.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
