package application_test

import (
	"context"
	"testing"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
	"github.com/Mostafa-DE/gatherly-sub002/internal/testfixtures"
)

// racingStore makes the next participation insert lose a uniqueness race.
// When rivalID is set, a competing row with that id is committed after the
// losing transaction rolls back.
type racingStore struct {
	persistence.Store
	armed   bool
	rivalID string
	pending *participation.Participation
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return fn(ctx, &racingTx{Tx: tx, store: s})
	})
	if s.pending != nil {
		rival := *s.pending
		s.pending = nil
		if cerr := s.Store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
			return tx.InsertParticipation(ctx, rival)
		}); cerr != nil {
			return cerr
		}
	}
	return err
}

type racingTx struct {
	persistence.Tx
	store *racingStore
}

func (t *racingTx) InsertParticipation(ctx context.Context, p participation.Participation) error {
	if !t.store.armed {
		return t.Tx.InsertParticipation(ctx, p)
	}
	t.store.armed = false
	if t.store.rivalID != "" {
		rival := p
		rival.ID = t.store.rivalID
		t.store.pending = &rival
	}
	return persistence.ErrDuplicate
}

func TestJoinSession_UniquenessRace(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the competing row", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)
		session := testfixtures.NewSessionFixture().Seed(t, harness.Store)
		store := &racingStore{Store: harness.Store, armed: true, rivalID: "rival-1"}
		service := testfixtures.NewServiceFactory().ParticipationService(store)

		got, err := service.JoinSession(ctx, session.ID, "user-a")
		if err != nil {
			t.Fatalf("JoinSession returned error: %v", err)
		}
		if got.ID != "rival-1" {
			t.Fatalf("expected competing participation rival-1, got %s", got.ID)
		}
		if got.Status != participation.StatusJoined {
			t.Fatalf("expected competing row joined, got %s", got.Status)
		}

		rows, err := harness.Store.ListParticipations(ctx, session.ID, persistence.ParticipationFilter{})
		if err != nil {
			t.Fatalf("ListParticipations returned error: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected exactly one participation, got %d", len(rows))
		}
	})

	t.Run("competing row gone", func(t *testing.T) {
		harness := testfixtures.NewSQLiteHarness(t)
		session := testfixtures.NewSessionFixture().Seed(t, harness.Store)
		store := &racingStore{Store: harness.Store, armed: true}
		service := testfixtures.NewServiceFactory().ParticipationService(store)

		_, err := service.JoinSession(ctx, session.ID, "user-a")
		expectKind(t, err, application.ErrConflict)
	})
}
