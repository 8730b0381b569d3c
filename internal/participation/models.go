// Package participation holds the session and participation domain model
// together with the pure decision rules used by the application services:
// capacity allocation, session status transitions and same-instant conflict
// detection.
package participation

import "time"

// JoinMode controls whether members can join a session on their own.
type JoinMode string

const (
	JoinModeOpen             JoinMode = "open"
	JoinModeApprovalRequired JoinMode = "approval_required"
	JoinModeInviteOnly       JoinMode = "invite_only"
)

// Valid reports whether m is a known join mode.
func (m JoinMode) Valid() bool {
	switch m {
	case JoinModeOpen, JoinModeApprovalRequired, JoinModeInviteOnly:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionPublished SessionStatus = "published"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

// Terminal reports whether no further participation changes are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCancelled || s == SessionCompleted
}

// Status is the state of a participation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusJoined     Status = "joined"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
)

// ActiveStatuses lists every status that occupies the (session, user) slot.
var ActiveStatuses = []Status{StatusPending, StatusJoined, StatusWaitlisted}

// Active reports whether the status counts as an active participation.
func (s Status) Active() bool {
	return s != StatusCancelled && s != ""
}

// Attendance records whether a participant showed up.
type Attendance string

const (
	AttendancePending Attendance = "pending"
	AttendanceShow    Attendance = "show"
	AttendanceNoShow  Attendance = "no_show"
)

// Valid reports whether a is a known attendance mark.
func (a Attendance) Valid() bool {
	switch a {
	case AttendancePending, AttendanceShow, AttendanceNoShow:
		return true
	}
	return false
}

// Payment records whether a participant has paid.
type Payment string

const (
	PaymentUnpaid Payment = "unpaid"
	PaymentPaid   Payment = "paid"
)

// Valid reports whether p is a known payment mark.
func (p Payment) Valid() bool {
	return p == PaymentUnpaid || p == PaymentPaid
}

// Session is a scheduled, capacity bounded event instance.
type Session struct {
	ID             string
	OrganizationID string
	ActivityID     *string
	Title          string
	DateTime       time.Time
	MaxCapacity    int
	MaxWaitlist    int
	JoinMode       JoinMode
	Status         SessionStatus
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Deleted reports whether the session has been soft deleted.
func (s Session) Deleted() bool {
	return s.DeletedAt != nil
}

// AcceptsParticipants reports whether self service joins may be created.
func (s Session) AcceptsParticipants() bool {
	return !s.Deleted() && s.Status == SessionPublished
}

// Participation is a user's membership record in a session.
type Participation struct {
	ID          string
	SessionID   string
	UserID      string
	Status      Status
	Attendance  Attendance
	Payment     Payment
	JoinedAt    time.Time
	CancelledAt *time.Time
	ReviewedBy  *string
	ReviewedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Counts are the per status aggregates of a session's participations.
type Counts struct {
	Joined     int
	Waitlisted int
	Pending    int
}

// UserConflict reports a user who already holds an active participation in
// another session scheduled at the same instant.
type UserConflict struct {
	UserID                  string
	ConflictingSessionID    string
	ConflictingSessionTitle string
}
