package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
	"github.com/Mostafa-DE/gatherly-sub002/internal/persistence"
)

const participationServiceName = "participation"

// ParticipationService runs the participation lifecycle. Every operation is a
// single transaction that locks the session row before reading counts.
type ParticipationService struct {
	store       persistence.Store
	conflicts   *ConflictCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewParticipationService wires dependencies for participation operations.
func NewParticipationService(store persistence.Store, conflicts *ConflictCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ParticipationService {
	if idGenerator == nil {
		idGenerator = NewID
	}
	if now == nil {
		now = time.Now
	}
	return &ParticipationService{
		store:       store,
		conflicts:   conflicts,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ParticipationService) timestamp() time.Time {
	return s.now().UTC()
}

func (s *ParticipationService) newParticipation(sessionID, userID string, status participation.Status, at time.Time) participation.Participation {
	return participation.Participation{
		ID:         s.idGenerator(),
		SessionID:  sessionID,
		UserID:     userID,
		Status:     status,
		Attendance: participation.AttendancePending,
		Payment:    participation.PaymentUnpaid,
		JoinedAt:   at,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// JoinSession adds the user to a published session. Calling it again while
// the user holds an active participation returns that participation
// unchanged.
func (s *ParticipationService) JoinSession(ctx context.Context, sessionID, userID string) (result participation.Participation, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.JoinSession",
		attribute.String("gatherly.session_id", sessionID),
		attribute.String("gatherly.user_id", userID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "join_session", "session_id", sessionID, "user_id", userID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "status", result.Status)
	}()

	if sessionID == "" || userID == "" {
		return participation.Participation{}, badRequest("session id and user id are required")
	}

	created := false
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		session, err := lockLiveSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !session.AcceptsParticipants() {
			return badRequest("session is not open for joining")
		}

		var status participation.Status
		switch session.JoinMode {
		case participation.JoinModeOpen:
		case participation.JoinModeApprovalRequired:
			status = participation.StatusPending
		case participation.JoinModeInviteOnly:
			return badRequest("session is invite only")
		default:
			return fmt.Errorf("unknown join mode %q", session.JoinMode)
		}

		existing, ok, err := findActive(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if ok {
			result = existing
			return nil
		}

		if status == "" {
			conflicts, err := userConflicts(ctx, tx, []string{userID}, session.ID, session.DateTime)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return conflict("already participating in %q at the same time", conflicts[0].ConflictingSessionTitle)
			}

			counts, err := tx.CountActive(ctx, sessionID)
			if err != nil {
				return err
			}
			allocated, ok := participation.Allocate(counts, session.MaxCapacity, session.MaxWaitlist).Status()
			if !ok {
				return badRequest("session and waitlist are full")
			}
			status = allocated
		}

		p := s.newParticipation(sessionID, userID, status, s.timestamp())
		if err := tx.InsertParticipation(ctx, p); err != nil {
			return err
		}
		result = p
		created = true
		return nil
	})

	if errors.Is(err, persistence.ErrDuplicate) {
		// A concurrent join won the race; hand back its row.
		logger.DebugContext(ctx, "join raced on uniqueness constraint, re-reading")
		return s.readActive(ctx, sessionID, userID)
	}
	if err != nil {
		return participation.Participation{}, err
	}
	if created {
		s.conflicts.Invalidate()
	}
	return result, nil
}

func (s *ParticipationService) readActive(ctx context.Context, sessionID, userID string) (participation.Participation, error) {
	var result participation.Participation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, ok, err := findActive(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("participation changed concurrently, retry")
		}
		result = p
		return nil
	})
	return result, err
}

// CancelParticipation cancels the caller's own participation. When a joined
// seat is released the earliest waitlisted participant without a same time
// booking elsewhere is promoted.
func (s *ParticipationService) CancelParticipation(ctx context.Context, participationID, userID string) (result participation.Participation, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.CancelParticipation",
		attribute.String("gatherly.participation_id", participationID),
		attribute.String("gatherly.user_id", userID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "cancel_participation", "participation_id", participationID, "user_id", userID)
	var promoted *participation.Participation
	defer func() {
		endSpan(span, err)
		attrs := []any{}
		if promoted != nil {
			attrs = append(attrs, "promoted_participation_id", promoted.ID)
		}
		logOutcome(ctx, logger, err, attrs...)
	}()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, err := loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return notFound("participation not found")
		}
		if p.Status == participation.StatusCancelled {
			return badRequest("participation is already cancelled")
		}

		session, err := lockLiveSession(ctx, tx, p.SessionID)
		if err != nil {
			return err
		}
		if session.Status == participation.SessionCompleted {
			return badRequest("session is completed")
		}

		// Re-read under the session lock so a concurrent promotion or
		// cancellation of this row is observed.
		p, err = loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		if p.Status == participation.StatusCancelled {
			return badRequest("participation is already cancelled")
		}

		wasJoined := p.Status == participation.StatusJoined
		now := s.timestamp()
		p.Status = participation.StatusCancelled
		p.CancelledAt = &now
		p.UpdatedAt = now
		if err := tx.UpdateParticipation(ctx, p); err != nil {
			return err
		}
		result = p

		if wasJoined {
			promoted, err = s.promote(ctx, tx, session, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return participation.Participation{}, err
	}
	s.conflicts.Invalidate()
	return result, nil
}

// promote moves the earliest eligible waitlisted participant to joined.
// Candidates holding an active participation in another session at the same
// instant stay waitlisted and the next one is tried.
func (s *ParticipationService) promote(ctx context.Context, tx persistence.Tx, session participation.Session, now time.Time) (*participation.Participation, error) {
	counts, err := tx.CountActive(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if counts.Joined >= session.MaxCapacity {
		return nil, nil
	}

	var skipped []string
	for {
		candidate, err := tx.NextWaitlistCandidate(ctx, session.ID, skipped)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		conflicts, err := userConflicts(ctx, tx, []string{candidate.UserID}, session.ID, session.DateTime)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			skipped = append(skipped, candidate.ID)
			continue
		}

		candidate.Status = participation.StatusJoined
		candidate.UpdatedAt = now
		if err := tx.UpdateParticipation(ctx, candidate); err != nil {
			return nil, err
		}
		return &candidate, nil
	}
}

// AdminAddParticipant adds a user regardless of join mode. Unlike
// JoinSession an existing active participation is a conflict.
func (s *ParticipationService) AdminAddParticipant(ctx context.Context, sessionID, userID string) (result participation.Participation, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.AdminAddParticipant",
		attribute.String("gatherly.session_id", sessionID),
		attribute.String("gatherly.user_id", userID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "admin_add_participant", "session_id", sessionID, "user_id", userID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "status", result.Status)
	}()

	if sessionID == "" || userID == "" {
		return participation.Participation{}, badRequest("session id and user id are required")
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		session, err := lockLiveSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return badRequest("session is %s", session.Status)
		}

		if _, ok, err := findActive(ctx, tx, sessionID, userID); err != nil {
			return err
		} else if ok {
			return conflict("user already participates in this session")
		}

		conflicts, err := userConflicts(ctx, tx, []string{userID}, session.ID, session.DateTime)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return conflict("user already participates in %q at the same time", conflicts[0].ConflictingSessionTitle)
		}

		counts, err := tx.CountActive(ctx, sessionID)
		if err != nil {
			return err
		}
		status, ok := participation.Allocate(counts, session.MaxCapacity, session.MaxWaitlist).Status()
		if !ok {
			return badRequest("session and waitlist are full")
		}

		p := s.newParticipation(sessionID, userID, status, s.timestamp())
		if err := tx.InsertParticipation(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return participation.Participation{}, conflict("user already participates in this session")
	}
	if err != nil {
		return participation.Participation{}, err
	}
	s.conflicts.Invalidate()
	return result, nil
}

// MoveParticipant cancels a participation and recreates it in another
// session of the same organization. The source waitlist is not promoted. A
// full target rolls the whole move back.
func (s *ParticipationService) MoveParticipant(ctx context.Context, participationID, targetSessionID string) (result MoveResult, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.MoveParticipant",
		attribute.String("gatherly.participation_id", participationID),
		attribute.String("gatherly.target_session_id", targetSessionID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "move_participant", "participation_id", participationID, "target_session_id", targetSessionID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "created_participation_id", result.Created.ID)
	}()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		source, err := loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		if source.Status == participation.StatusCancelled {
			return badRequest("participation is already cancelled")
		}
		if source.SessionID == targetSessionID {
			return badRequest("participation is already in the target session")
		}

		sourceSession, targetSession, err := lockPair(ctx, tx, source.SessionID, targetSessionID)
		if err != nil {
			return err
		}
		if sourceSession.OrganizationID != targetSession.OrganizationID {
			return badRequest("sessions belong to different organizations")
		}
		if targetSession.Status.Terminal() {
			return badRequest("target session is %s", targetSession.Status)
		}

		source, err = loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		if source.Status == participation.StatusCancelled {
			return badRequest("participation is already cancelled")
		}

		if _, ok, err := findActive(ctx, tx, targetSessionID, source.UserID); err != nil {
			return err
		} else if ok {
			return badRequest("user already participates in the target session")
		}

		now := s.timestamp()
		source.Status = participation.StatusCancelled
		source.CancelledAt = &now
		source.UpdatedAt = now
		if err := tx.UpdateParticipation(ctx, source); err != nil {
			return err
		}

		counts, err := tx.CountActive(ctx, targetSessionID)
		if err != nil {
			return err
		}
		status, ok := participation.Allocate(counts, targetSession.MaxCapacity, targetSession.MaxWaitlist).Status()
		if !ok {
			return conflict("target session and waitlist are full")
		}

		created := s.newParticipation(targetSessionID, source.UserID, status, now)
		if err := tx.InsertParticipation(ctx, created); err != nil {
			return err
		}

		result = MoveResult{Cancelled: source, Created: created}
		return nil
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return MoveResult{}, badRequest("user already participates in the target session")
	}
	if err != nil {
		return MoveResult{}, err
	}
	s.conflicts.Invalidate()
	return result, nil
}

// lockPair locks two sessions in ascending id order and returns them in the
// order they were requested.
func lockPair(ctx context.Context, tx persistence.Tx, sourceID, targetID string) (participation.Session, participation.Session, error) {
	first, second := sourceID, targetID
	if second < first {
		first, second = second, first
	}

	locked := make(map[string]participation.Session, 2)
	for _, id := range []string{first, second} {
		session, err := lockLiveSession(ctx, tx, id)
		if err != nil {
			return participation.Session{}, participation.Session{}, err
		}
		locked[id] = session
	}
	return locked[sourceID], locked[targetID], nil
}

// ApprovePendingParticipation allocates a seat or waitlist slot to a pending
// participation.
func (s *ParticipationService) ApprovePendingParticipation(ctx context.Context, participationID, reviewerID string) (result participation.Participation, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.ApprovePendingParticipation",
		attribute.String("gatherly.participation_id", participationID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "approve_participation", "participation_id", participationID, "reviewer_id", reviewerID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "status", result.Status)
	}()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, err := s.lockPending(ctx, tx, participationID)
		if err != nil {
			return err
		}

		session, err := lockLiveSession(ctx, tx, p.SessionID)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return badRequest("session is %s", session.Status)
		}

		counts, err := tx.CountActive(ctx, p.SessionID)
		if err != nil {
			return err
		}
		status, ok := participation.Allocate(counts, session.MaxCapacity, session.MaxWaitlist).Status()
		if !ok {
			return badRequest("session and waitlist are full")
		}

		now := s.timestamp()
		p.Status = status
		p.ReviewedBy = optionalString(reviewerID)
		p.ReviewedAt = &now
		p.UpdatedAt = now
		if err := tx.UpdateParticipation(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return participation.Participation{}, err
	}
	s.conflicts.Invalidate()
	return result, nil
}

// RejectPendingParticipation cancels a pending participation. The row is kept
// as history.
func (s *ParticipationService) RejectPendingParticipation(ctx context.Context, participationID, reviewerID string) (result participation.Participation, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.RejectPendingParticipation",
		attribute.String("gatherly.participation_id", participationID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "reject_participation", "participation_id", participationID, "reviewer_id", reviewerID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err)
	}()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, err := s.lockPending(ctx, tx, participationID)
		if err != nil {
			return err
		}

		now := s.timestamp()
		p.Status = participation.StatusCancelled
		p.CancelledAt = &now
		p.ReviewedBy = optionalString(reviewerID)
		p.ReviewedAt = &now
		p.UpdatedAt = now
		if err := tx.UpdateParticipation(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return participation.Participation{}, err
	}
	s.conflicts.Invalidate()
	return result, nil
}

// lockPending loads a pending participation after locking its session so two
// reviewers cannot decide the same row concurrently.
func (s *ParticipationService) lockPending(ctx context.Context, tx persistence.Tx, participationID string) (participation.Participation, error) {
	p, err := loadParticipation(ctx, tx, participationID)
	if err != nil {
		return participation.Participation{}, err
	}
	if _, err := tx.LockSession(ctx, p.SessionID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return participation.Participation{}, err
	}
	p, err = loadParticipation(ctx, tx, participationID)
	if err != nil {
		return participation.Participation{}, err
	}
	if p.Status != participation.StatusPending {
		return participation.Participation{}, badRequest("participation is not pending")
	}
	return p, nil
}

// BulkUpdateAttendance sets attendance marks for participations of one
// session. Nothing is written when any id does not belong to the session.
func (s *ParticipationService) BulkUpdateAttendance(ctx context.Context, sessionID string, updates []AttendanceUpdate) (count int, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.BulkUpdateAttendance",
		attribute.String("gatherly.session_id", sessionID),
		attribute.Int("gatherly.updates", len(updates)),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "bulk_update_attendance", "session_id", sessionID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err, "updated", count)
	}()

	vErr := &ValidationError{}
	for i, update := range updates {
		if update.ParticipationID == "" {
			vErr.add(fmt.Sprintf("updates[%d].participation_id", i), "participation id is required")
		}
		if !update.Attendance.Valid() {
			vErr.add(fmt.Sprintf("updates[%d].attendance", i), "attendance must be pending, show or no_show")
		}
	}
	if vErr.HasErrors() {
		return 0, vErr
	}
	if len(updates) == 0 {
		return 0, nil
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if _, err := lockLiveSession(ctx, tx, sessionID); err != nil {
			return err
		}

		now := s.timestamp()
		for _, update := range updates {
			p, err := loadParticipation(ctx, tx, update.ParticipationID)
			if err != nil {
				return err
			}
			if p.SessionID != sessionID {
				return notFound("participation %s not found in session", update.ParticipationID)
			}
			p.Attendance = update.Attendance
			p.UpdatedAt = now
			if err := tx.UpdateParticipation(ctx, p); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpdatePayment sets the payment mark of a participation.
func (s *ParticipationService) UpdatePayment(ctx context.Context, participationID string, payment participation.Payment) (result participation.Participation, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.UpdatePayment",
		attribute.String("gatherly.participation_id", participationID),
	)
	logger := serviceLogger(ctx, s.logger, participationServiceName, "update_payment", "participation_id", participationID)
	defer func() {
		endSpan(span, err)
		logOutcome(ctx, logger, err)
	}()

	if !payment.Valid() {
		vErr := &ValidationError{}
		vErr.add("payment", "payment must be unpaid or paid")
		return participation.Participation{}, vErr
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, err := loadParticipation(ctx, tx, participationID)
		if err != nil {
			return err
		}
		p.Payment = payment
		p.UpdatedAt = s.timestamp()
		if err := tx.UpdateParticipation(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return participation.Participation{}, err
	}
	return result, nil
}

// FindParticipantConflictsForNewTime lists, for every active participant of
// the session, other active participations in non deleted sessions that fall
// exactly on candidate.
func (s *ParticipationService) FindParticipantConflictsForNewTime(ctx context.Context, sessionID string, candidate time.Time) (result []participation.UserConflict, err error) {
	ctx, span := startSpan(ctx, "ParticipationService.FindParticipantConflictsForNewTime",
		attribute.String("gatherly.session_id", sessionID),
	)
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		result, err = sessionConflicts(ctx, tx, sessionID, candidate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetWaitlistPosition returns the 1-based rank of a waitlisted participation
// ordered by (joinedAt, id), or nil when the participation is not on the
// session's waitlist.
func (s *ParticipationService) GetWaitlistPosition(ctx context.Context, sessionID, userID string, joinedAt time.Time, participationID string) (*int, error) {
	var position *int
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, err := tx.GetParticipation(ctx, participationID)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if p.SessionID != sessionID || p.UserID != userID || p.Status != participation.StatusWaitlisted {
			return nil
		}

		ahead, err := tx.WaitlistRank(ctx, sessionID, joinedAt, participationID)
		if err != nil {
			return err
		}
		rank := ahead + 1
		position = &rank
		return nil
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// WaitlistPositionForUser looks up the user's active participation in the
// session and returns its waitlist rank, or nil when not waitlisted.
func (s *ParticipationService) WaitlistPositionForUser(ctx context.Context, sessionID, userID string) (*int, error) {
	var active participation.Participation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		p, ok, err := findActive(ctx, tx, sessionID, userID)
		if err != nil || !ok {
			return err
		}
		active = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if active.Status != participation.StatusWaitlisted {
		return nil, nil
	}
	return s.GetWaitlistPosition(ctx, sessionID, userID, active.JoinedAt, active.ID)
}

// GetParticipation returns a participation by id.
func (s *ParticipationService) GetParticipation(ctx context.Context, participationID string) (participation.Participation, error) {
	p, err := s.store.GetParticipation(ctx, participationID)
	if errors.Is(err, persistence.ErrNotFound) {
		return participation.Participation{}, notFound("participation not found")
	}
	return p, err
}

// ListParticipants returns the participations of a live session ordered by
// join time, optionally filtered by status.
func (s *ParticipationService) ListParticipants(ctx context.Context, sessionID string, statuses []participation.Status) ([]participation.Participation, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && session.Deleted()) {
		return nil, notFound("session not found")
	}
	if err != nil {
		return nil, err
	}

	for _, status := range statuses {
		switch status {
		case participation.StatusPending, participation.StatusJoined, participation.StatusWaitlisted, participation.StatusCancelled:
		default:
			return nil, badRequest("unknown participation status %q", status)
		}
	}

	participants, err := s.store.ListParticipations(ctx, sessionID, persistence.ParticipationFilter{Statuses: statuses})
	if err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []participation.Participation{}
	}
	return participants, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
