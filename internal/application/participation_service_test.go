package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
	"github.com/Mostafa-DE/gatherly-sub002/internal/testfixtures"
)

type env struct {
	store        persistence.Store
	participants *application.ParticipationService
	sessions     *application.SessionService
	factory      *testfixtures.ServiceFactory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	harness := testfixtures.NewSQLiteHarness(t)
	factory := testfixtures.NewServiceFactory()
	return &env{
		store:        harness.Store,
		participants: factory.ParticipationService(harness.Store),
		sessions:     factory.SessionService(harness.Store),
		factory:      factory,
	}
}

func (e *env) seed(t *testing.T, opts ...testfixtures.SessionOption) participation.Session {
	t.Helper()
	return testfixtures.NewSessionFixture(opts...).Seed(t, e.store)
}

func (e *env) join(t *testing.T, sessionID, userID string) participation.Participation {
	t.Helper()
	p, err := e.participants.JoinSession(context.Background(), sessionID, userID)
	if err != nil {
		t.Fatalf("JoinSession(%s, %s) returned error: %v", sessionID, userID, err)
	}
	return p
}

func (e *env) reload(t *testing.T, id string) participation.Participation {
	t.Helper()
	p, err := e.store.GetParticipation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetParticipation(%s) returned error: %v", id, err)
	}
	return p
}

func expectKind(t *testing.T, err error, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func TestJoinSession_IdempotentWithWaitlistAndPromotion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithLimits(1, 2))

	a := e.join(t, session.ID, "user-a")
	if a.Status != participation.StatusJoined {
		t.Fatalf("expected A joined, got %s", a.Status)
	}

	again := e.join(t, session.ID, "user-a")
	if again.ID != a.ID || again.Status != participation.StatusJoined {
		t.Fatalf("expected idempotent join to return %s/joined, got %s/%s", a.ID, again.ID, again.Status)
	}

	b := e.join(t, session.ID, "user-b")
	if b.Status != participation.StatusWaitlisted {
		t.Fatalf("expected B waitlisted, got %s", b.Status)
	}

	cancelled, err := e.participants.CancelParticipation(ctx, a.ID, "user-a")
	if err != nil {
		t.Fatalf("CancelParticipation returned error: %v", err)
	}
	if cancelled.ID != a.ID || cancelled.Status != participation.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled record for A, got %+v", cancelled)
	}

	if got := e.reload(t, b.ID).Status; got != participation.StatusJoined {
		t.Fatalf("expected B promoted to joined, got %s", got)
	}

	all, err := e.participants.ListParticipants(ctx, session.ID, nil)
	if err != nil {
		t.Fatalf("ListParticipants returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected no duplicate rows, got %d", len(all))
	}
}

func TestJoinSession_Refusals(t *testing.T) {
	ctx := context.Background()
	deletedAt := testfixtures.ReferenceTime()

	tests := []struct {
		name string
		opts []testfixtures.SessionOption
		kind error
	}{
		{name: "draft session", opts: []testfixtures.SessionOption{testfixtures.WithStatus(participation.SessionDraft)}, kind: application.ErrBadRequest},
		{name: "completed session", opts: []testfixtures.SessionOption{testfixtures.WithStatus(participation.SessionCompleted)}, kind: application.ErrBadRequest},
		{name: "invite only", opts: []testfixtures.SessionOption{testfixtures.WithJoinMode(participation.JoinModeInviteOnly)}, kind: application.ErrBadRequest},
		{name: "soft deleted", opts: []testfixtures.SessionOption{testfixtures.WithDeletedAt(deletedAt)}, kind: application.ErrNotFound},
		{name: "no capacity at all", opts: []testfixtures.SessionOption{testfixtures.WithLimits(0, 0)}, kind: application.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			session := e.seed(t, tt.opts...)
			_, err := e.participants.JoinSession(ctx, session.ID, "user-a")
			expectKind(t, err, tt.kind)
		})
	}

	t.Run("missing session", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.participants.JoinSession(ctx, "missing", "user-a")
		expectKind(t, err, application.ErrNotFound)
	})

	t.Run("full message", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t, testfixtures.WithLimits(1, 0))
		e.join(t, session.ID, "user-a")
		_, err := e.participants.JoinSession(ctx, session.ID, "user-b")
		expectKind(t, err, application.ErrBadRequest)
		if msg := application.PublicMessage(err); msg != "session and waitlist are full" {
			t.Fatalf("unexpected message %q", msg)
		}
	})
}

func TestJoinSession_InviteOnlyAdminAdd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithJoinMode(participation.JoinModeInviteOnly))

	_, err := e.participants.JoinSession(ctx, session.ID, "user-a")
	expectKind(t, err, application.ErrBadRequest)

	added, err := e.participants.AdminAddParticipant(ctx, session.ID, "user-a")
	if err != nil {
		t.Fatalf("AdminAddParticipant returned error: %v", err)
	}
	if added.Status != participation.StatusJoined {
		t.Fatalf("expected joined, got %s", added.Status)
	}

	_, err = e.participants.AdminAddParticipant(ctx, session.ID, "user-a")
	expectKind(t, err, application.ErrConflict)
}

func TestAdminAddParticipant_SessionStatus(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		status participation.SessionStatus
		kind   error
	}{
		{status: participation.SessionDraft},
		{status: participation.SessionPublished},
		{status: participation.SessionCancelled, kind: application.ErrBadRequest},
		{status: participation.SessionCompleted, kind: application.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			e := newEnv(t)
			session := e.seed(t, testfixtures.WithStatus(tt.status))
			_, err := e.participants.AdminAddParticipant(ctx, session.ID, "user-a")
			if tt.kind == nil {
				if err != nil {
					t.Fatalf("AdminAddParticipant returned error: %v", err)
				}
				return
			}
			expectKind(t, err, tt.kind)
		})
	}
}

func TestJoinSession_ApprovalWorkflow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t,
		testfixtures.WithJoinMode(participation.JoinModeApprovalRequired),
		testfixtures.WithLimits(1, 1),
	)

	first := e.join(t, session.ID, "user-a")
	second := e.join(t, session.ID, "user-b")
	if first.Status != participation.StatusPending || second.Status != participation.StatusPending {
		t.Fatalf("expected both pending, got %s and %s", first.Status, second.Status)
	}

	approved, err := e.participants.ApprovePendingParticipation(ctx, first.ID, "admin-1")
	if err != nil {
		t.Fatalf("ApprovePendingParticipation returned error: %v", err)
	}
	if approved.Status != participation.StatusJoined {
		t.Fatalf("expected first joined, got %s", approved.Status)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != "admin-1" || approved.ReviewedAt == nil {
		t.Fatalf("expected reviewer metadata, got %+v", approved)
	}

	approved, err = e.participants.ApprovePendingParticipation(ctx, second.ID, "admin-1")
	if err != nil {
		t.Fatalf("ApprovePendingParticipation returned error: %v", err)
	}
	if approved.Status != participation.StatusWaitlisted {
		t.Fatalf("expected second waitlisted, got %s", approved.Status)
	}

	_, err = e.participants.ApprovePendingParticipation(ctx, second.ID, "admin-1")
	expectKind(t, err, application.ErrBadRequest)

	_, err = e.participants.ApprovePendingParticipation(ctx, "missing", "admin-1")
	expectKind(t, err, application.ErrNotFound)

	t.Run("exhausted", func(t *testing.T) {
		third := e.join(t, session.ID, "user-c")
		_, err := e.participants.ApprovePendingParticipation(ctx, third.ID, "admin-1")
		expectKind(t, err, application.ErrBadRequest)
		if got := e.reload(t, third.ID).Status; got != participation.StatusPending {
			t.Fatalf("expected refused approval to leave pending, got %s", got)
		}
	})
}

func TestRejectPendingParticipation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithJoinMode(participation.JoinModeApprovalRequired))

	pending := e.join(t, session.ID, "user-a")
	rejected, err := e.participants.RejectPendingParticipation(ctx, pending.ID, "admin-1")
	if err != nil {
		t.Fatalf("RejectPendingParticipation returned error: %v", err)
	}
	if rejected.Status != participation.StatusCancelled || rejected.CancelledAt == nil || rejected.ReviewedBy == nil {
		t.Fatalf("unexpected rejected record %+v", rejected)
	}

	_, err = e.participants.RejectPendingParticipation(ctx, pending.ID, "admin-1")
	expectKind(t, err, application.ErrBadRequest)
	_, err = e.participants.RejectPendingParticipation(ctx, "missing", "admin-1")
	expectKind(t, err, application.ErrNotFound)

	again := e.join(t, session.ID, "user-a")
	if again.ID == pending.ID {
		t.Fatalf("expected a new row after rejection")
	}
	if e.reload(t, pending.ID).Status != participation.StatusCancelled {
		t.Fatalf("expected rejected row kept as history")
	}
}

func TestCancelParticipation_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("other user", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t)
		p := e.join(t, session.ID, "user-a")
		_, err := e.participants.CancelParticipation(ctx, p.ID, "user-b")
		expectKind(t, err, application.ErrNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.participants.CancelParticipation(ctx, "missing", "user-a")
		expectKind(t, err, application.ErrNotFound)
	})

	t.Run("already cancelled", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t)
		p := e.join(t, session.ID, "user-a")
		if _, err := e.participants.CancelParticipation(ctx, p.ID, "user-a"); err != nil {
			t.Fatalf("first cancel returned error: %v", err)
		}
		_, err := e.participants.CancelParticipation(ctx, p.ID, "user-a")
		expectKind(t, err, application.ErrBadRequest)
	})

	t.Run("completed session", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t)
		p := e.join(t, session.ID, "user-a")
		if _, err := e.sessions.ChangeStatus(ctx, session.ID, participation.SessionCompleted); err != nil {
			t.Fatalf("ChangeStatus returned error: %v", err)
		}
		_, err := e.participants.CancelParticipation(ctx, p.ID, "user-a")
		expectKind(t, err, application.ErrBadRequest)
	})

	t.Run("deleted session", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t)
		p := e.join(t, session.ID, "user-a")
		if err := e.sessions.SoftDeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("SoftDeleteSession returned error: %v", err)
		}
		_, err := e.participants.CancelParticipation(ctx, p.ID, "user-a")
		expectKind(t, err, application.ErrNotFound)
	})
}

func TestCancelParticipation_PromotionRules(t *testing.T) {
	ctx := context.Background()

	t.Run("fifo order", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t, testfixtures.WithLimits(1, 2))
		a := e.join(t, session.ID, "user-a")
		b := e.join(t, session.ID, "user-b")
		c := e.join(t, session.ID, "user-c")

		if _, err := e.participants.CancelParticipation(ctx, a.ID, "user-a"); err != nil {
			t.Fatalf("CancelParticipation returned error: %v", err)
		}
		if got := e.reload(t, b.ID).Status; got != participation.StatusJoined {
			t.Fatalf("expected B promoted, got %s", got)
		}
		if got := e.reload(t, c.ID).Status; got != participation.StatusWaitlisted {
			t.Fatalf("expected C still waitlisted, got %s", got)
		}
	})

	t.Run("conflicting candidate skipped", func(t *testing.T) {
		e := newEnv(t)
		at := testfixtures.ReferenceTime().Add(48 * time.Hour)
		session := e.seed(t, testfixtures.WithLimits(1, 2), testfixtures.WithDateTime(at))
		other := e.seed(t, testfixtures.WithDateTime(at.Add(time.Hour)))

		a := e.join(t, session.ID, "user-a")
		b := e.join(t, session.ID, "user-b")
		c := e.join(t, session.ID, "user-c")

		// B books another session that is then moved onto the same instant.
		e.join(t, other.ID, "user-b")
		if _, _, err := e.sessions.RescheduleSession(ctx, application.RescheduleParams{SessionID: other.ID, DateTime: at, Force: true}); err != nil {
			t.Fatalf("RescheduleSession returned error: %v", err)
		}

		if _, err := e.participants.CancelParticipation(ctx, a.ID, "user-a"); err != nil {
			t.Fatalf("CancelParticipation returned error: %v", err)
		}
		if got := e.reload(t, b.ID).Status; got != participation.StatusWaitlisted {
			t.Fatalf("expected conflicting B to stay waitlisted, got %s", got)
		}
		if got := e.reload(t, c.ID).Status; got != participation.StatusJoined {
			t.Fatalf("expected C promoted, got %s", got)
		}
	})

	t.Run("draft session promotes before publishing", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t, testfixtures.WithLimits(1, 1), testfixtures.WithStatus(participation.SessionDraft))
		a, err := e.participants.AdminAddParticipant(ctx, session.ID, "user-a")
		if err != nil {
			t.Fatalf("AdminAddParticipant(A) returned error: %v", err)
		}
		b, err := e.participants.AdminAddParticipant(ctx, session.ID, "user-b")
		if err != nil {
			t.Fatalf("AdminAddParticipant(B) returned error: %v", err)
		}
		if b.Status != participation.StatusWaitlisted {
			t.Fatalf("expected B waitlisted, got %s", b.Status)
		}

		if _, err := e.participants.CancelParticipation(ctx, a.ID, "user-a"); err != nil {
			t.Fatalf("CancelParticipation returned error: %v", err)
		}
		if got := e.reload(t, b.ID).Status; got != participation.StatusJoined {
			t.Fatalf("expected B promoted in draft session, got %s", got)
		}

		if _, err := e.sessions.ChangeStatus(ctx, session.ID, participation.SessionPublished); err != nil {
			t.Fatalf("ChangeStatus returned error: %v", err)
		}
		c := e.join(t, session.ID, "user-c")
		if c.Status != participation.StatusWaitlisted {
			t.Fatalf("expected late joiner C waitlisted, got %s", c.Status)
		}
	})

	t.Run("waitlisted cancel does not promote", func(t *testing.T) {
		e := newEnv(t)
		session := e.seed(t, testfixtures.WithLimits(1, 2))
		e.join(t, session.ID, "user-a")
		b := e.join(t, session.ID, "user-b")
		c := e.join(t, session.ID, "user-c")

		if _, err := e.participants.CancelParticipation(ctx, b.ID, "user-b"); err != nil {
			t.Fatalf("CancelParticipation returned error: %v", err)
		}
		if got := e.reload(t, c.ID).Status; got != participation.StatusWaitlisted {
			t.Fatalf("expected C still waitlisted, got %s", got)
		}
	})

	t.Run("whole waitlist conflicting", func(t *testing.T) {
		e := newEnv(t)
		at := testfixtures.ReferenceTime().Add(72 * time.Hour)
		session := e.seed(t, testfixtures.WithLimits(1, 1), testfixtures.WithDateTime(at))
		other := e.seed(t, testfixtures.WithDateTime(at.Add(time.Hour)))
		a := e.join(t, session.ID, "user-a")
		b := e.join(t, session.ID, "user-b")
		e.join(t, other.ID, "user-b")
		if _, _, err := e.sessions.RescheduleSession(ctx, application.RescheduleParams{SessionID: other.ID, DateTime: at, Force: true}); err != nil {
			t.Fatalf("RescheduleSession returned error: %v", err)
		}

		if _, err := e.participants.CancelParticipation(ctx, a.ID, "user-a"); err != nil {
			t.Fatalf("CancelParticipation returned error: %v", err)
		}
		if got := e.reload(t, b.ID).Status; got != participation.StatusWaitlisted {
			t.Fatalf("expected B to stay waitlisted, got %s", got)
		}
	})
}

func TestJoinSession_SameTimeConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	at := testfixtures.ReferenceTime().Add(24 * time.Hour)
	first := e.seed(t, testfixtures.WithDateTime(at), testfixtures.WithTitle("Morning run"))
	second := e.seed(t, testfixtures.WithDateTime(at))
	later := e.seed(t, testfixtures.WithDateTime(at.Add(time.Minute)))

	e.join(t, first.ID, "user-a")
	_, err := e.participants.JoinSession(ctx, second.ID, "user-a")
	expectKind(t, err, application.ErrConflict)

	_, err = e.participants.AdminAddParticipant(ctx, second.ID, "user-a")
	expectKind(t, err, application.ErrConflict)

	if _, err := e.participants.JoinSession(ctx, later.ID, "user-a"); err != nil {
		t.Fatalf("different instant must not conflict: %v", err)
	}

	t.Run("deleted session does not conflict", func(t *testing.T) {
		if err := e.sessions.SoftDeleteSession(ctx, first.ID); err != nil {
			t.Fatalf("SoftDeleteSession returned error: %v", err)
		}
		if _, err := e.participants.JoinSession(ctx, second.ID, "user-a"); err != nil {
			t.Fatalf("JoinSession returned error: %v", err)
		}
	})
}

func TestMoveParticipant(t *testing.T) {
	ctx := context.Background()

	t.Run("moves without promoting source waitlist", func(t *testing.T) {
		e := newEnv(t)
		source := e.seed(t, testfixtures.WithLimits(1, 1))
		target := e.seed(t, testfixtures.WithLimits(2, 0))
		a := e.join(t, source.ID, "user-a")
		b := e.join(t, source.ID, "user-b")

		result, err := e.participants.MoveParticipant(ctx, a.ID, target.ID)
		if err != nil {
			t.Fatalf("MoveParticipant returned error: %v", err)
		}
		if result.Cancelled.ID != a.ID || result.Cancelled.Status != participation.StatusCancelled {
			t.Fatalf("unexpected cancelled record %+v", result.Cancelled)
		}
		if result.Created.SessionID != target.ID || result.Created.Status != participation.StatusJoined || result.Created.UserID != "user-a" {
			t.Fatalf("unexpected created record %+v", result.Created)
		}
		if got := e.reload(t, b.ID).Status; got != participation.StatusWaitlisted {
			t.Fatalf("expected B to remain waitlisted, got %s", got)
		}
	})

	t.Run("full target rolls back", func(t *testing.T) {
		e := newEnv(t)
		source := e.seed(t)
		target := e.seed(t, testfixtures.WithLimits(1, 0))
		a := e.join(t, source.ID, "user-a")
		e.join(t, target.ID, "user-x")

		_, err := e.participants.MoveParticipant(ctx, a.ID, target.ID)
		expectKind(t, err, application.ErrConflict)

		restored := e.reload(t, a.ID)
		if restored.Status != participation.StatusJoined || restored.CancelledAt != nil {
			t.Fatalf("expected source restored to joined, got %+v", restored)
		}
		if statuses := testfixtures.ParticipationStatuses(t, e.store, target.ID); len(statuses) != 1 {
			t.Fatalf("expected no row created in target, got %v", statuses)
		}
	})

	refusals := []struct {
		name   string
		target func(t *testing.T, e *env, source participation.Session) string
		kind   error
	}{
		{
			name:   "same session",
			target: func(t *testing.T, e *env, source participation.Session) string { return source.ID },
			kind:   application.ErrBadRequest,
		},
		{
			name: "other organization",
			target: func(t *testing.T, e *env, source participation.Session) string {
				return e.seed(t, testfixtures.WithOrganization("org-2")).ID
			},
			kind: application.ErrBadRequest,
		},
		{
			name: "cancelled target",
			target: func(t *testing.T, e *env, source participation.Session) string {
				return e.seed(t, testfixtures.WithStatus(participation.SessionCancelled)).ID
			},
			kind: application.ErrBadRequest,
		},
		{
			name: "completed target",
			target: func(t *testing.T, e *env, source participation.Session) string {
				return e.seed(t, testfixtures.WithStatus(participation.SessionCompleted)).ID
			},
			kind: application.ErrBadRequest,
		},
		{
			name: "already in target",
			target: func(t *testing.T, e *env, source participation.Session) string {
				target := e.seed(t, testfixtures.WithDateTime(source.DateTime.Add(time.Hour)))
				e.join(t, target.ID, "user-a")
				return target.ID
			},
			kind: application.ErrBadRequest,
		},
		{
			name:   "missing target",
			target: func(t *testing.T, e *env, source participation.Session) string { return "missing" },
			kind:   application.ErrNotFound,
		},
	}

	for _, tt := range refusals {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			source := e.seed(t)
			a := e.join(t, source.ID, "user-a")
			targetID := tt.target(t, e, source)

			_, err := e.participants.MoveParticipant(ctx, a.ID, targetID)
			expectKind(t, err, tt.kind)
			if got := e.reload(t, a.ID).Status; got != participation.StatusJoined {
				t.Fatalf("expected source untouched, got %s", got)
			}
		})
	}

	t.Run("cancelled source", func(t *testing.T) {
		e := newEnv(t)
		source := e.seed(t)
		target := e.seed(t)
		a := e.join(t, source.ID, "user-a")
		if _, err := e.participants.CancelParticipation(ctx, a.ID, "user-a"); err != nil {
			t.Fatalf("CancelParticipation returned error: %v", err)
		}
		_, err := e.participants.MoveParticipant(ctx, a.ID, target.ID)
		expectKind(t, err, application.ErrBadRequest)
	})

	t.Run("missing source", func(t *testing.T) {
		e := newEnv(t)
		target := e.seed(t)
		_, err := e.participants.MoveParticipant(ctx, "missing", target.ID)
		expectKind(t, err, application.ErrNotFound)
	})
}

func TestBulkUpdateAttendance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t)
	other := e.seed(t)
	a := e.join(t, session.ID, "user-a")
	b := e.join(t, session.ID, "user-b")
	foreign := e.join(t, other.ID, "user-c")

	count, err := e.participants.BulkUpdateAttendance(ctx, session.ID, []application.AttendanceUpdate{
		{ParticipationID: a.ID, Attendance: participation.AttendanceShow},
		{ParticipationID: b.ID, Attendance: participation.AttendanceNoShow},
	})
	if err != nil {
		t.Fatalf("BulkUpdateAttendance returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 updates, got %d", count)
	}
	if got := e.reload(t, a.ID).Attendance; got != participation.AttendanceShow {
		t.Fatalf("expected show, got %s", got)
	}

	_, err = e.participants.BulkUpdateAttendance(ctx, session.ID, []application.AttendanceUpdate{
		{ParticipationID: a.ID, Attendance: participation.AttendancePending},
		{ParticipationID: foreign.ID, Attendance: participation.AttendanceShow},
	})
	expectKind(t, err, application.ErrNotFound)
	if got := e.reload(t, a.ID).Attendance; got != participation.AttendanceShow {
		t.Fatalf("expected rollback to keep show, got %s", got)
	}

	_, err = e.participants.BulkUpdateAttendance(ctx, session.ID, []application.AttendanceUpdate{
		{ParticipationID: a.ID, Attendance: "late"},
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	count, err = e.participants.BulkUpdateAttendance(ctx, session.ID, nil)
	if err != nil || count != 0 {
		t.Fatalf("expected empty update to be a no-op, got %d, %v", count, err)
	}
}

func TestFindParticipantConflictsForNewTime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	at := testfixtures.ReferenceTime().Add(24 * time.Hour)
	candidate := at.Add(3 * time.Hour)

	session := e.seed(t, testfixtures.WithDateTime(at))
	empty := e.seed(t, testfixtures.WithDateTime(at))
	busy := e.seed(t, testfixtures.WithDateTime(candidate), testfixtures.WithTitle("Evening match"))

	conflicts, err := e.participants.FindParticipantConflictsForNewTime(ctx, empty.ID, candidate)
	if err != nil {
		t.Fatalf("FindParticipantConflictsForNewTime returned error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts for a session without participants, got %v", conflicts)
	}

	e.join(t, session.ID, "user-a")
	e.join(t, session.ID, "user-b")
	e.join(t, busy.ID, "user-b")

	conflicts, err = e.participants.FindParticipantConflictsForNewTime(ctx, session.ID, candidate)
	if err != nil {
		t.Fatalf("FindParticipantConflictsForNewTime returned error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflicts)
	}
	if conflicts[0].UserID != "user-b" || conflicts[0].ConflictingSessionID != busy.ID || conflicts[0].ConflictingSessionTitle != "Evening match" {
		t.Fatalf("unexpected conflict %+v", conflicts[0])
	}

	conflicts, err = e.participants.FindParticipantConflictsForNewTime(ctx, session.ID, candidate.Add(time.Minute))
	if err != nil {
		t.Fatalf("FindParticipantConflictsForNewTime returned error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts without overlap, got %v", conflicts)
	}
}

func TestGetWaitlistPosition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithLimits(1, 3))

	a := e.join(t, session.ID, "user-a")
	b := e.join(t, session.ID, "user-b")
	c := e.join(t, session.ID, "user-c")

	pos, err := e.participants.GetWaitlistPosition(ctx, session.ID, "user-c", c.JoinedAt, c.ID)
	if err != nil {
		t.Fatalf("GetWaitlistPosition returned error: %v", err)
	}
	if pos == nil || *pos != 2 {
		t.Fatalf("expected position 2, got %v", pos)
	}

	pos, err = e.participants.GetWaitlistPosition(ctx, session.ID, "user-a", a.JoinedAt, a.ID)
	if err != nil || pos != nil {
		t.Fatalf("expected nil position for joined participant, got %v, %v", pos, err)
	}

	if _, err := e.participants.CancelParticipation(ctx, b.ID, "user-b"); err != nil {
		t.Fatalf("CancelParticipation returned error: %v", err)
	}
	pos, err = e.participants.WaitlistPositionForUser(ctx, session.ID, "user-c")
	if err != nil {
		t.Fatalf("WaitlistPositionForUser returned error: %v", err)
	}
	if pos == nil || *pos != 1 {
		t.Fatalf("expected position 1 after B left, got %v", pos)
	}

	pos, err = e.participants.WaitlistPositionForUser(ctx, session.ID, "user-z")
	if err != nil || pos != nil {
		t.Fatalf("expected nil position for non participant, got %v, %v", pos, err)
	}
}

func TestUpdatePayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t)
	a := e.join(t, session.ID, "user-a")

	updated, err := e.participants.UpdatePayment(ctx, a.ID, participation.PaymentPaid)
	if err != nil {
		t.Fatalf("UpdatePayment returned error: %v", err)
	}
	if updated.Payment != participation.PaymentPaid {
		t.Fatalf("expected paid, got %s", updated.Payment)
	}

	_, err = e.participants.UpdatePayment(ctx, a.ID, "refunded")
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = e.participants.UpdatePayment(ctx, "missing", participation.PaymentPaid)
	expectKind(t, err, application.ErrNotFound)
}

func TestListParticipants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithLimits(1, 1))
	e.join(t, session.ID, "user-a")
	e.join(t, session.ID, "user-b")

	waitlisted, err := e.participants.ListParticipants(ctx, session.ID, []participation.Status{participation.StatusWaitlisted})
	if err != nil {
		t.Fatalf("ListParticipants returned error: %v", err)
	}
	if len(waitlisted) != 1 || waitlisted[0].UserID != "user-b" {
		t.Fatalf("unexpected waitlist %+v", waitlisted)
	}

	_, err = e.participants.ListParticipants(ctx, session.ID, []participation.Status{"unknown"})
	expectKind(t, err, application.ErrBadRequest)

	_, err = e.participants.ListParticipants(ctx, "missing", nil)
	expectKind(t, err, application.ErrNotFound)
}

func TestConcurrentJoinsNeverOversell(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithLimits(5, 3))

	const users = 30
	var g errgroup.Group
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%02d", i)
		g.Go(func() error {
			_, err := e.participants.JoinSession(ctx, session.ID, userID)
			if err != nil && !errors.Is(err, application.ErrBadRequest) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent join failed: %v", err)
	}

	assertCounts(t, e, session.ID, 5, 3)
}

func TestConcurrentJoinSameUserIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t)

	ids := make([]string, 10)
	var g errgroup.Group
	for i := range ids {
		g.Go(func() error {
			p, err := e.participants.JoinSession(ctx, session.ID, "user-a")
			if err != nil {
				return err
			}
			ids[i] = p.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent join failed: %v", err)
	}

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected a single participation id, got %v", ids)
		}
	}
	rows, err := e.participants.ListParticipants(ctx, session.ID, nil)
	if err != nil {
		t.Fatalf("ListParticipants returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
}

func TestConcurrentCancellationsPromoteDistinctParticipants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	session := e.seed(t, testfixtures.WithLimits(3, 3))

	var joined []participation.Participation
	for i := 0; i < 6; i++ {
		p := e.join(t, session.ID, fmt.Sprintf("user-%d", i))
		if p.Status == participation.StatusJoined {
			joined = append(joined, p)
		}
	}
	if len(joined) != 3 {
		t.Fatalf("expected three joined participants, got %d", len(joined))
	}

	var g errgroup.Group
	for _, p := range joined {
		g.Go(func() error {
			_, err := e.participants.CancelParticipation(ctx, p.ID, p.UserID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent cancel failed: %v", err)
	}

	assertCounts(t, e, session.ID, 3, 0)
}

func assertCounts(t *testing.T, e *env, sessionID string, joined, waitlisted int) {
	t.Helper()
	rows, err := e.participants.ListParticipants(context.Background(), sessionID, nil)
	if err != nil {
		t.Fatalf("ListParticipants returned error: %v", err)
	}

	var counts participation.Counts
	active := map[string]int{}
	for _, p := range rows {
		switch p.Status {
		case participation.StatusJoined:
			counts.Joined++
		case participation.StatusWaitlisted:
			counts.Waitlisted++
		}
		if p.Status.Active() {
			active[p.UserID]++
		}
	}
	if counts.Joined != joined || counts.Waitlisted != waitlisted {
		t.Fatalf("expected %d joined and %d waitlisted, got %+v", joined, waitlisted, counts)
	}
	for user, n := range active {
		if n > 1 {
			t.Fatalf("user %s holds %d active participations", user, n)
		}
	}
}
