// Package storetest holds behaviour tests shared by every persistence.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

var base = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// Run exercises store against the persistence contract. newStore must return
// an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	t.Helper()

	t.Run("session round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		activity := "activity-1"
		session := newSession("s-1", base)
		session.ActivityID = &activity

		mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
			return tx.CreateSession(ctx, session)
		})

		got, err := store.GetSession(ctx, "s-1")
		if err != nil {
			t.Fatalf("GetSession returned error: %v", err)
		}
		if got.Title != session.Title || !got.DateTime.Equal(session.DateTime) {
			t.Fatalf("unexpected session %+v", got)
		}
		if got.ActivityID == nil || *got.ActivityID != activity {
			t.Fatalf("expected activity id %q, got %v", activity, got.ActivityID)
		}
		if got.Deleted() {
			t.Fatalf("new session must not be deleted")
		}

		deletedAt := base.Add(time.Hour)
		got.DeletedAt = &deletedAt
		got.Status = participation.SessionCancelled
		mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
			return tx.UpdateSession(ctx, got)
		})

		locked := lockSession(t, store, "s-1")
		if !locked.Deleted() || locked.Status != participation.SessionCancelled {
			t.Fatalf("update not persisted: %+v", locked)
		}
	})

	t.Run("missing rows", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for session, got %v", err)
		}
		if _, err := store.GetParticipation(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for participation, got %v", err)
		}
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
			_, err := tx.LockSession(ctx, "missing")
			return err
		})
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from LockSession, got %v", err)
		}
	})

	t.Run("active participation is unique", func(t *testing.T) {
		store := newStore(t)
		seedSession(t, store, newSession("s-1", base))
		insert(t, store, newParticipation("p-1", "s-1", "u-1", participation.StatusJoined, base))

		err := store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
			return tx.InsertParticipation(ctx, newParticipation("p-2", "s-1", "u-1", participation.StatusWaitlisted, base.Add(time.Second)))
		})
		if !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}

		cancelled := newParticipation("p-3", "s-1", "u-2", participation.StatusCancelled, base)
		insert(t, store, cancelled)
		insert(t, store, newParticipation("p-4", "s-1", "u-2", participation.StatusJoined, base.Add(time.Minute)))
	})

	t.Run("counts and lookups", func(t *testing.T) {
		store := newStore(t)
		seedSession(t, store, newSession("s-1", base))
		insert(t, store, newParticipation("p-1", "s-1", "u-1", participation.StatusJoined, base))
		insert(t, store, newParticipation("p-2", "s-1", "u-2", participation.StatusJoined, base.Add(time.Second)))
		insert(t, store, newParticipation("p-3", "s-1", "u-3", participation.StatusWaitlisted, base.Add(2*time.Second)))
		insert(t, store, newParticipation("p-4", "s-1", "u-4", participation.StatusPending, base.Add(3*time.Second)))
		insert(t, store, newParticipation("p-5", "s-1", "u-5", participation.StatusCancelled, base.Add(4*time.Second)))

		mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
			counts, err := tx.CountActive(ctx, "s-1")
			if err != nil {
				return err
			}
			if counts != (participation.Counts{Joined: 2, Waitlisted: 1, Pending: 1}) {
				return fmt.Errorf("unexpected counts %+v", counts)
			}

			active, err := tx.FindActiveParticipation(ctx, "s-1", "u-3")
			if err != nil {
				return err
			}
			if active.ID != "p-3" {
				return fmt.Errorf("expected p-3, got %s", active.ID)
			}
			if _, err := tx.FindActiveParticipation(ctx, "s-1", "u-5"); !errors.Is(err, persistence.ErrNotFound) {
				return fmt.Errorf("expected ErrNotFound for cancelled user, got %v", err)
			}

			users, err := tx.ListActiveUserIDs(ctx, "s-1")
			if err != nil {
				return err
			}
			if len(users) != 4 {
				return fmt.Errorf("expected 4 active users, got %v", users)
			}
			return nil
		})

		listed, err := store.ListParticipations(context.Background(), "s-1", persistence.ParticipationFilter{
			Statuses: []participation.Status{participation.StatusJoined},
		})
		if err != nil {
			t.Fatalf("ListParticipations returned error: %v", err)
		}
		if len(listed) != 2 || listed[0].ID != "p-1" || listed[1].ID != "p-2" {
			t.Fatalf("unexpected joined listing %+v", listed)
		}

		all, err := store.ListParticipations(context.Background(), "s-1", persistence.ParticipationFilter{})
		if err != nil {
			t.Fatalf("ListParticipations returned error: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected 5 participations, got %d", len(all))
		}
	})

	t.Run("waitlist order", func(t *testing.T) {
		store := newStore(t)
		seedSession(t, store, newSession("s-1", base))
		insert(t, store, newParticipation("p-b", "s-1", "u-1", participation.StatusWaitlisted, base))
		insert(t, store, newParticipation("p-a", "s-1", "u-2", participation.StatusWaitlisted, base))
		insert(t, store, newParticipation("p-c", "s-1", "u-3", participation.StatusWaitlisted, base.Add(-time.Minute)))

		mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
			first, err := tx.NextWaitlistCandidate(ctx, "s-1", nil)
			if err != nil {
				return err
			}
			if first.ID != "p-c" {
				return fmt.Errorf("expected p-c first, got %s", first.ID)
			}
			second, err := tx.NextWaitlistCandidate(ctx, "s-1", []string{"p-c"})
			if err != nil {
				return err
			}
			if second.ID != "p-a" {
				return fmt.Errorf("expected id tie-break to pick p-a, got %s", second.ID)
			}
			if _, err := tx.NextWaitlistCandidate(ctx, "s-1", []string{"p-a", "p-b", "p-c"}); !errors.Is(err, persistence.ErrNotFound) {
				return fmt.Errorf("expected exhausted waitlist, got %v", err)
			}

			rank, err := tx.WaitlistRank(ctx, "s-1", base, "p-b")
			if err != nil {
				return err
			}
			if rank != 2 {
				return fmt.Errorf("expected two rows ahead of p-b, got %d", rank)
			}
			return nil
		})
	})

	t.Run("bookings skip deleted sessions", func(t *testing.T) {
		store := newStore(t)
		seedSession(t, store, newSession("s-1", base))
		seedSession(t, store, newSession("s-2", base))
		deleted := newSession("s-3", base)
		deletedAt := base
		deleted.DeletedAt = &deletedAt
		seedSession(t, store, deleted)

		insert(t, store, newParticipation("p-1", "s-1", "u-1", participation.StatusJoined, base))
		insert(t, store, newParticipation("p-2", "s-2", "u-1", participation.StatusPending, base))
		insert(t, store, newParticipation("p-3", "s-3", "u-1", participation.StatusJoined, base))
		insert(t, store, newParticipation("p-4", "s-2", "u-2", participation.StatusCancelled, base))

		mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
			bookings, err := tx.ListActiveBookings(ctx, []string{"u-1", "u-2"})
			if err != nil {
				return err
			}
			if len(bookings) != 2 {
				return fmt.Errorf("expected 2 bookings, got %+v", bookings)
			}
			for _, b := range bookings {
				if b.SessionID == "s-3" || b.UserID != "u-1" {
					return fmt.Errorf("unexpected booking %+v", b)
				}
				if !b.DateTime.Equal(base) {
					return fmt.Errorf("unexpected booking time %v", b.DateTime)
				}
			}
			empty, err := tx.ListActiveBookings(ctx, nil)
			if err != nil {
				return err
			}
			if len(empty) != 0 {
				return fmt.Errorf("expected no bookings for no users, got %d", len(empty))
			}
			return nil
		})
	})

	t.Run("rollback on error", func(t *testing.T) {
		store := newStore(t)
		seedSession(t, store, newSession("s-1", base))
		failure := errors.New("boom")

		err := store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
			if err := tx.InsertParticipation(ctx, newParticipation("p-1", "s-1", "u-1", participation.StatusJoined, base)); err != nil {
				return err
			}
			return failure
		})
		if !errors.Is(err, failure) {
			t.Fatalf("expected failure to propagate, got %v", err)
		}
		if _, err := store.GetParticipation(context.Background(), "p-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected rolled back insert, got %v", err)
		}
	})

	t.Run("update missing participation", func(t *testing.T) {
		store := newStore(t)
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
			return tx.UpdateParticipation(ctx, newParticipation("missing", "s-1", "u-1", participation.StatusJoined, base))
		})
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func newSession(id string, at time.Time) participation.Session {
	return participation.Session{
		ID:             id,
		OrganizationID: "org-1",
		Title:          "Session " + id,
		DateTime:       at,
		MaxCapacity:    2,
		MaxWaitlist:    2,
		JoinMode:       participation.JoinModeOpen,
		Status:         participation.SessionPublished,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func newParticipation(id, sessionID, userID string, status participation.Status, joinedAt time.Time) participation.Participation {
	p := participation.Participation{
		ID:         id,
		SessionID:  sessionID,
		UserID:     userID,
		Status:     status,
		Attendance: participation.AttendancePending,
		Payment:    participation.PaymentUnpaid,
		JoinedAt:   joinedAt,
		CreatedAt:  joinedAt,
		UpdatedAt:  joinedAt,
	}
	if status == participation.StatusCancelled {
		at := joinedAt
		p.CancelledAt = &at
	}
	return p
}

func mustTx(t *testing.T, store persistence.Store, fn func(ctx context.Context, tx persistence.Tx) error) {
	t.Helper()
	if err := store.WithinTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func seedSession(t *testing.T, store persistence.Store, session participation.Session) {
	t.Helper()
	mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
		return tx.CreateSession(ctx, session)
	})
}

func insert(t *testing.T, store persistence.Store, p participation.Participation) {
	t.Helper()
	mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
		return tx.InsertParticipation(ctx, p)
	})
}

func lockSession(t *testing.T, store persistence.Store, id string) participation.Session {
	t.Helper()
	var session participation.Session
	mustTx(t, store, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		session, err = tx.LockSession(ctx, id)
		return err
	})
	return session
}
