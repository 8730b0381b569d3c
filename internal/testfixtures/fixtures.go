package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

var sessionCounter uint64

var referenceTime = time.Date(2026, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// SessionFixture represents a deterministic session that can be seeded into a
// store or turned into service input.
type SessionFixture struct {
	ID             string
	OrganizationID string
	ActivityID     *string
	Title          string
	DateTime       time.Time
	MaxCapacity    int
	MaxWaitlist    int
	JoinMode       participation.JoinMode
	Status         participation.SessionStatus
	DeletedAt      *time.Time
	CreatedAt      time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a published, open session with room for two
// participants and two waitlisted, one week after ReferenceTime.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:             fmt.Sprintf("session-%04d", idx),
		OrganizationID: "org-1",
		Title:          fmt.Sprintf("Session %04d", idx),
		DateTime:       referenceTime.Add(7 * 24 * time.Hour),
		MaxCapacity:    2,
		MaxWaitlist:    2,
		JoinMode:       participation.JoinModeOpen,
		Status:         participation.SessionPublished,
		CreatedAt:      referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithOrganization overrides the owning organization.
func WithOrganization(id string) SessionOption {
	return func(f *SessionFixture) {
		f.OrganizationID = id
	}
}

// WithTitle overrides the session title.
func WithTitle(title string) SessionOption {
	return func(f *SessionFixture) {
		f.Title = title
	}
}

// WithDateTime overrides the session start.
func WithDateTime(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.DateTime = t
	}
}

// WithLimits sets capacity and waitlist size.
func WithLimits(capacity, waitlist int) SessionOption {
	return func(f *SessionFixture) {
		f.MaxCapacity = capacity
		f.MaxWaitlist = waitlist
	}
}

// WithJoinMode overrides the join mode.
func WithJoinMode(mode participation.JoinMode) SessionOption {
	return func(f *SessionFixture) {
		f.JoinMode = mode
	}
}

// WithStatus overrides the lifecycle status.
func WithStatus(status participation.SessionStatus) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
	}
}

// WithDeletedAt marks the session soft deleted.
func WithDeletedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.DeletedAt = &t
	}
}

// Session converts the fixture into the domain representation.
func (f SessionFixture) Session() participation.Session {
	return participation.Session{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		ActivityID:     copyStringPtr(f.ActivityID),
		Title:          f.Title,
		DateTime:       f.DateTime,
		MaxCapacity:    f.MaxCapacity,
		MaxWaitlist:    f.MaxWaitlist,
		JoinMode:       f.JoinMode,
		Status:         f.Status,
		DeletedAt:      f.DeletedAt,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}

// Input converts the fixture into CreateSession input.
func (f SessionFixture) Input() application.CreateSessionInput {
	return application.CreateSessionInput{
		OrganizationID: f.OrganizationID,
		ActivityID:     copyStringPtr(f.ActivityID),
		Title:          f.Title,
		DateTime:       f.DateTime,
		MaxCapacity:    f.MaxCapacity,
		MaxWaitlist:    f.MaxWaitlist,
		JoinMode:       f.JoinMode,
	}
}

// Seed writes the fixture directly into store and returns the stored session.
func (f SessionFixture) Seed(tb testing.TB, store persistence.Store) participation.Session {
	tb.Helper()
	session := f.Session()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		tb.Fatalf("seed session %s: %v", session.ID, err)
	}
	return session
}

// ParticipationStatuses returns the status of every participation of the
// session keyed by user id. Cancelled rows are skipped when an active row
// exists for the same user.
func ParticipationStatuses(tb testing.TB, store persistence.Store, sessionID string) map[string]participation.Status {
	tb.Helper()
	rows, err := store.ListParticipations(context.Background(), sessionID, persistence.ParticipationFilter{})
	if err != nil {
		tb.Fatalf("list participations of %s: %v", sessionID, err)
	}
	statuses := make(map[string]participation.Status, len(rows))
	for _, p := range rows {
		if current, ok := statuses[p.UserID]; ok && current.Active() {
			continue
		}
		statuses[p.UserID] = p.Status
	}
	return statuses
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
