package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

const sessionServiceName = "session"

// SessionService manages the sessions participations attach to.
type SessionService struct {
	store       persistence.Store
	conflicts   *ConflictCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionService wires dependencies for session operations.
func NewSessionService(store persistence.Store, conflicts *ConflictCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if idGenerator == nil {
		idGenerator = NewID
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		store:       store,
		conflicts:   conflicts,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateSession validates the input and stores a new draft session.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (result participation.Session, err error) {
	ctx, span := startSpan(ctx, "SessionService.CreateSession",
		attribute.String("gatherly.organization_id", input.OrganizationID),
	)
	logger := serviceLogger(ctx, s.logger, sessionServiceName, "create_session", "organization_id", input.OrganizationID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "session_id", result.ID)
	}()

	if input.JoinMode == "" {
		input.JoinMode = participation.JoinModeOpen
	}
	if vErr := validateSessionInput(input); vErr.HasErrors() {
		return participation.Session{}, vErr
	}

	now := s.now().UTC()
	session := participation.Session{
		ID:             s.idGenerator(),
		OrganizationID: strings.TrimSpace(input.OrganizationID),
		ActivityID:     input.ActivityID,
		Title:          strings.TrimSpace(input.Title),
		DateTime:       input.DateTime.UTC(),
		MaxCapacity:    input.MaxCapacity,
		MaxWaitlist:    input.MaxWaitlist,
		JoinMode:       input.JoinMode,
		Status:         participation.SessionDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return participation.Session{}, err
	}
	return session, nil
}

func validateSessionInput(input CreateSessionInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.OrganizationID) == "" {
		vErr.add("organization_id", "organization is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if input.DateTime.IsZero() {
		vErr.add("date_time", "date and time are required")
	}
	vErr.merge(validateLimits(input.MaxCapacity, input.MaxWaitlist))
	if !input.JoinMode.Valid() {
		vErr.add("join_mode", "join mode must be open, approval_required or invite_only")
	}
	if input.ActivityID != nil && strings.TrimSpace(*input.ActivityID) == "" {
		vErr.add("activity_id", "activity id must not be blank")
	}
	return vErr
}

func validateLimits(capacity, waitlist int) *ValidationError {
	vErr := &ValidationError{}
	if capacity < 0 {
		vErr.add("max_capacity", "capacity must not be negative")
	}
	if waitlist < 0 {
		vErr.add("max_waitlist", "waitlist must not be negative")
	}
	return vErr
}

// GetSession returns a live session.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (participation.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
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

// ChangeStatus moves the session through its lifecycle.
func (s *SessionService) ChangeStatus(ctx context.Context, sessionID string, to participation.SessionStatus) (result participation.Session, err error) {
	ctx, span := startSpan(ctx, "SessionService.ChangeStatus",
		attribute.String("gatherly.session_id", sessionID),
		attribute.String("gatherly.session_status", string(to)),
	)
	logger := serviceLogger(ctx, s.logger, sessionServiceName, "change_status", "session_id", sessionID, "to", to)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err)
	}()

	if !to.Valid() {
		vErr := &ValidationError{}
		vErr.add("status", "unknown session status")
		return participation.Session{}, vErr
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		session, err := lockLiveSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := participation.ValidateTransition(session.Status, to); err != nil {
			return badRequest("session cannot move from %s to %s", session.Status, to)
		}
		session.Status = to
		session.UpdatedAt = s.now().UTC()
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return participation.Session{}, err
	}
	s.conflicts.Invalidate()
	return result, nil
}

// RescheduleSession changes the session's date and time. When participants
// would be double booked the change is refused with ErrConflict and the
// conflicts are returned, unless params.Force is set.
func (s *SessionService) RescheduleSession(ctx context.Context, params RescheduleParams) (result participation.Session, conflicts []participation.UserConflict, err error) {
	ctx, span := startSpan(ctx, "SessionService.RescheduleSession",
		attribute.String("gatherly.session_id", params.SessionID),
		attribute.Bool("gatherly.force", params.Force),
	)
	logger := serviceLogger(ctx, s.logger, sessionServiceName, "reschedule_session", "session_id", params.SessionID, "force", params.Force)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "conflicts", len(conflicts))
	}()

	if params.DateTime.IsZero() {
		vErr := &ValidationError{}
		vErr.add("date_time", "date and time are required")
		return participation.Session{}, nil, vErr
	}
	at := params.DateTime.UTC()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		session, err := lockLiveSession(ctx, tx, params.SessionID)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return badRequest("session is %s", session.Status)
		}

		conflicts, err = sessionConflicts(ctx, tx, session.ID, at)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 && !params.Force {
			return conflict("%d participant(s) already booked at the new time", len(conflicts))
		}

		session.DateTime = at
		session.UpdatedAt = s.now().UTC()
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return participation.Session{}, conflicts, err
	}
	s.conflicts.Invalidate()
	return result, conflicts, nil
}

// SoftDeleteSession marks the session deleted. Its participations are kept.
func (s *SessionService) SoftDeleteSession(ctx context.Context, sessionID string) (err error) {
	ctx, span := startSpan(ctx, "SessionService.SoftDeleteSession",
		attribute.String("gatherly.session_id", sessionID),
	)
	logger := serviceLogger(ctx, s.logger, sessionServiceName, "soft_delete_session", "session_id", sessionID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err)
	}()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		session, err := lockLiveSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		session.DeletedAt = &now
		session.UpdatedAt = now
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}
	s.conflicts.Invalidate()
	return nil
}

// PreviewConflicts reports the participants that would be double booked if
// the session moved to candidate. Results are cached until the next write.
func (s *SessionService) PreviewConflicts(ctx context.Context, sessionID string, candidate time.Time) (result []participation.UserConflict, err error) {
	ctx, span := startSpan(ctx, "SessionService.PreviewConflicts",
		attribute.String("gatherly.session_id", sessionID),
	)
	defer func() { endSpan(span, err) }()

	if cached, ok := s.conflicts.Get(sessionID, candidate); ok {
		span.SetAttributes(attribute.Bool("gatherly.cache_hit", true))
		return cached, nil
	}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	generation := s.conflicts.Generation()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		result, err = sessionConflicts(ctx, tx, sessionID, candidate.UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.conflicts.Store(generation, sessionID, candidate, result)
	return result, nil
}
