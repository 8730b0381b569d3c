package http

import (
	"strings"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

type sessionDTO struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	ActivityID     *string `json:"activity_id,omitempty"`
	Title          string  `json:"title"`
	DateTime       string  `json:"date_time"`
	MaxCapacity    int     `json:"max_capacity"`
	MaxWaitlist    int     `json:"max_waitlist"`
	JoinMode       string  `json:"join_mode"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type participationDTO struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"status"`
	Attendance  string  `json:"attendance"`
	Payment     string  `json:"payment"`
	JoinedAt    string  `json:"joined_at"`
	CancelledAt *string `json:"cancelled_at,omitempty"`
	ReviewedBy  *string `json:"reviewed_by,omitempty"`
	ReviewedAt  *string `json:"reviewed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type conflictDTO struct {
	UserID                  string `json:"user_id"`
	ConflictingSessionID    string `json:"conflicting_session_id"`
	ConflictingSessionTitle string `json:"conflicting_session_title"`
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type rescheduleResponse struct {
	Session   sessionDTO    `json:"session"`
	Conflicts []conflictDTO `json:"conflicts"`
}

type conflictsResponse struct {
	Conflicts []conflictDTO `json:"conflicts"`
}

type participationResponse struct {
	Participation participationDTO `json:"participation"`
}

type participantsResponse struct {
	Participants []participationDTO `json:"participants"`
}

type moveResponse struct {
	Cancelled participationDTO `json:"cancelled"`
	Created   participationDTO `json:"created"`
}

type attendanceResponse struct {
	Updated int `json:"updated"`
}

type waitlistPositionResponse struct {
	Position *int `json:"position"`
}

type createSessionRequest struct {
	ActivityID  *string `json:"activity_id"`
	Title       string  `json:"title"`
	DateTime    string  `json:"date_time"`
	MaxCapacity int     `json:"max_capacity"`
	MaxWaitlist int     `json:"max_waitlist"`
	JoinMode    string  `json:"join_mode"`
}

func (r createSessionRequest) toInput(organizationID string) (application.CreateSessionInput, error) {
	at, err := parseTimeField("date_time", r.DateTime)
	if err != nil {
		return application.CreateSessionInput{}, err
	}
	return application.CreateSessionInput{
		OrganizationID: organizationID,
		ActivityID:     r.ActivityID,
		Title:          strings.TrimSpace(r.Title),
		DateTime:       at,
		MaxCapacity:    r.MaxCapacity,
		MaxWaitlist:    r.MaxWaitlist,
		JoinMode:       participation.JoinMode(strings.TrimSpace(r.JoinMode)),
	}, nil
}

type statusRequest struct {
	Status string `json:"status"`
}

type rescheduleRequest struct {
	DateTime string `json:"date_time"`
	Force    bool   `json:"force"`
}

type addParticipantRequest struct {
	UserID string `json:"user_id"`
}

type moveRequest struct {
	TargetSessionID string `json:"target_session_id"`
}

type paymentRequest struct {
	Payment string `json:"payment"`
}

type attendanceRequest struct {
	Updates []struct {
		ParticipationID string `json:"participation_id"`
		Attendance      string `json:"attendance"`
	} `json:"updates"`
}

func (r attendanceRequest) toUpdates() []application.AttendanceUpdate {
	updates := make([]application.AttendanceUpdate, 0, len(r.Updates))
	for _, u := range r.Updates {
		updates = append(updates, application.AttendanceUpdate{
			ParticipationID: strings.TrimSpace(u.ParticipationID),
			Attendance:      participation.Attendance(strings.TrimSpace(u.Attendance)),
		})
	}
	return updates
}

// parseTimeField accepts RFC 3339 timestamps. Failures are reported as a
// validation error on field.
func parseTimeField(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &application.ValidationError{FieldErrors: map[string]string{field: "date and time are required"}}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &application.ValidationError{FieldErrors: map[string]string{field: "must be an RFC 3339 timestamp"}}
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := formatTime(*t)
	return &value
}

func toSessionDTO(session participation.Session) sessionDTO {
	return sessionDTO{
		ID:             session.ID,
		OrganizationID: session.OrganizationID,
		ActivityID:     session.ActivityID,
		Title:          session.Title,
		DateTime:       formatTime(session.DateTime),
		MaxCapacity:    session.MaxCapacity,
		MaxWaitlist:    session.MaxWaitlist,
		JoinMode:       string(session.JoinMode),
		Status:         string(session.Status),
		CreatedAt:      formatTime(session.CreatedAt),
		UpdatedAt:      formatTime(session.UpdatedAt),
	}
}

func toParticipationDTO(p participation.Participation) participationDTO {
	return participationDTO{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		Status:      string(p.Status),
		Attendance:  string(p.Attendance),
		Payment:     string(p.Payment),
		JoinedAt:    formatTime(p.JoinedAt),
		CancelledAt: formatOptionalTime(p.CancelledAt),
		ReviewedBy:  p.ReviewedBy,
		ReviewedAt:  formatOptionalTime(p.ReviewedAt),
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func toParticipationDTOs(participations []participation.Participation) []participationDTO {
	out := make([]participationDTO, 0, len(participations))
	for _, p := range participations {
		out = append(out, toParticipationDTO(p))
	}
	return out
}

func toConflictDTOs(conflicts []participation.UserConflict) []conflictDTO {
	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictDTO{
			UserID:                  c.UserID,
			ConflictingSessionID:    c.ConflictingSessionID,
			ConflictingSessionTitle: c.ConflictingSessionTitle,
		})
	}
	return out
}

func parseStatuses(value string) []participation.Status {
	var statuses []participation.Status
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			statuses = append(statuses, participation.Status(part))
		}
	}
	return statuses
}
