package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

type participationService interface {
	JoinSession(ctx context.Context, sessionID, userID string) (participation.Participation, error)
	CancelParticipation(ctx context.Context, participationID, userID string) (participation.Participation, error)
	AdminAddParticipant(ctx context.Context, sessionID, userID string) (participation.Participation, error)
	MoveParticipant(ctx context.Context, participationID, targetSessionID string) (application.MoveResult, error)
	ApprovePendingParticipation(ctx context.Context, participationID, reviewerID string) (participation.Participation, error)
	RejectPendingParticipation(ctx context.Context, participationID, reviewerID string) (participation.Participation, error)
	BulkUpdateAttendance(ctx context.Context, sessionID string, updates []application.AttendanceUpdate) (int, error)
	UpdatePayment(ctx context.Context, participationID string, payment participation.Payment) (participation.Participation, error)
	WaitlistPositionForUser(ctx context.Context, sessionID, userID string) (*int, error)
	GetParticipation(ctx context.Context, participationID string) (participation.Participation, error)
	ListParticipants(ctx context.Context, sessionID string, statuses []participation.Status) ([]participation.Participation, error)
}

// ParticipationHandler serves the participation lifecycle endpoints. Members
// act on their own participations; admins manage anyone in their
// organization.
type ParticipationHandler struct {
	service   participationService
	sessions  sessionReader
	responder responder
	logger    *slog.Logger
}

func NewParticipationHandler(service participationService, sessions sessionReader, logger *slog.Logger) *ParticipationHandler {
	base := defaultLogger(logger)
	return &ParticipationHandler{service: service, sessions: sessions, responder: newResponder(base), logger: base}
}

func (h *ParticipationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ParticipationHandler", operation, attrs...)
}

func (h *ParticipationHandler) fail(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	logger.WarnContext(ctx, message, "error", err, "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(ctx, w, err)
}

func (h *ParticipationHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// scopedParticipation loads a participation whose session belongs to the
// caller's organization.
func (h *ParticipationHandler) scopedParticipation(ctx context.Context, principal application.Principal, participationID string) (participation.Participation, error) {
	p, err := h.service.GetParticipation(ctx, participationID)
	if err != nil {
		return participation.Participation{}, err
	}
	if _, err := scopedSession(ctx, h.sessions, principal, p.SessionID); err != nil {
		return participation.Participation{}, err
	}
	return p, nil
}

func (h *ParticipationHandler) Join(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "Join", "principal_id", principal.UserID, "session_id", sessionID)

	if _, err := scopedSession(ctx, h.sessions, principal, sessionID); err != nil {
		h.fail(ctx, w, logger, "session lookup failed", err)
		return
	}

	p, err := h.service.JoinSession(ctx, sessionID, principal.UserID)
	if err != nil {
		h.fail(ctx, w, logger, "join failed", err)
		return
	}

	logger.InfoContext(ctx, "session joined", "participation_id", p.ID, "status", p.Status)
	h.responder.writeJSON(ctx, w, http.StatusOK, participationResponse{Participation: toParticipationDTO(p)})
}

func (h *ParticipationHandler) WaitlistPosition(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "WaitlistPosition", "principal_id", principal.UserID, "session_id", sessionID)

	if _, err := scopedSession(ctx, h.sessions, principal, sessionID); err != nil {
		h.fail(ctx, w, logger, "session lookup failed", err)
		return
	}

	position, err := h.service.WaitlistPositionForUser(ctx, sessionID, principal.UserID)
	if err != nil {
		h.fail(ctx, w, logger, "waitlist position lookup failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, waitlistPositionResponse{Position: position})
}

func (h *ParticipationHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "List", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorizeSession(ctx, w, logger, principal, sessionID) {
		return
	}

	participants, err := h.service.ListParticipants(ctx, sessionID, parseStatuses(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(ctx, w, logger, "participant list failed", err)
		return
	}

	logger.With("result_count", len(participants)).InfoContext(ctx, "participants listed")
	h.responder.writeJSON(ctx, w, http.StatusOK, participantsResponse{Participants: toParticipationDTOs(participants)})
}

func (h *ParticipationHandler) AdminAdd(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "AdminAdd", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorizeSession(ctx, w, logger, principal, sessionID) {
		return
	}

	var req addParticipantRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		logger.WarnContext(ctx, "failed to decode participant request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	p, err := h.service.AdminAddParticipant(ctx, sessionID, strings.TrimSpace(req.UserID))
	if err != nil {
		h.fail(ctx, w, logger, "admin add failed", err)
		return
	}

	logger.InfoContext(ctx, "participant added", "participation_id", p.ID, "status", p.Status)
	h.responder.writeJSON(ctx, w, http.StatusCreated, participationResponse{Participation: toParticipationDTO(p)})
}

func (h *ParticipationHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "Attendance", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorizeSession(ctx, w, logger, principal, sessionID) {
		return
	}

	var req attendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode attendance request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	updated, err := h.service.BulkUpdateAttendance(ctx, sessionID, req.toUpdates())
	if err != nil {
		h.fail(ctx, w, logger, "attendance update failed", err)
		return
	}

	logger.InfoContext(ctx, "attendance updated", "updated", updated)
	h.responder.writeJSON(ctx, w, http.StatusOK, attendanceResponse{Updated: updated})
}

func (h *ParticipationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	participationID := r.PathValue("id")
	logger := h.log(ctx, "Cancel", "principal_id", principal.UserID, "participation_id", participationID)

	if _, err := h.scopedParticipation(ctx, principal, participationID); err != nil {
		h.fail(ctx, w, logger, "participation lookup failed", err)
		return
	}

	p, err := h.service.CancelParticipation(ctx, participationID, principal.UserID)
	if err != nil {
		h.fail(ctx, w, logger, "cancel failed", err)
		return
	}

	logger.InfoContext(ctx, "participation cancelled")
	h.responder.writeJSON(ctx, w, http.StatusOK, participationResponse{Participation: toParticipationDTO(p)})
}

func (h *ParticipationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.review(w, r, "Approve", h.service.ApprovePendingParticipation)
}

func (h *ParticipationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.review(w, r, "Reject", h.service.RejectPendingParticipation)
}

func (h *ParticipationHandler) review(w http.ResponseWriter, r *http.Request, operation string, decide func(ctx context.Context, participationID, reviewerID string) (participation.Participation, error)) {
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	participationID := r.PathValue("id")
	logger := h.log(ctx, operation, "principal_id", principal.UserID, "participation_id", participationID)
	if !h.authorizeParticipation(ctx, w, logger, principal, participationID) {
		return
	}

	p, err := decide(ctx, participationID, principal.UserID)
	if err != nil {
		h.fail(ctx, w, logger, "review failed", err)
		return
	}

	logger.InfoContext(ctx, "participation reviewed", "status", p.Status)
	h.responder.writeJSON(ctx, w, http.StatusOK, participationResponse{Participation: toParticipationDTO(p)})
}

func (h *ParticipationHandler) Move(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	participationID := r.PathValue("id")
	logger := h.log(ctx, "Move", "principal_id", principal.UserID, "participation_id", participationID)
	if !h.authorizeParticipation(ctx, w, logger, principal, participationID) {
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.TargetSessionID) == "" {
		logger.WarnContext(ctx, "failed to decode move request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.MoveParticipant(ctx, participationID, strings.TrimSpace(req.TargetSessionID))
	if err != nil {
		h.fail(ctx, w, logger, "move failed", err)
		return
	}

	logger.InfoContext(ctx, "participant moved", "created_participation_id", result.Created.ID)
	h.responder.writeJSON(ctx, w, http.StatusOK, moveResponse{
		Cancelled: toParticipationDTO(result.Cancelled),
		Created:   toParticipationDTO(result.Created),
	})
}

func (h *ParticipationHandler) Payment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	participationID := r.PathValue("id")
	logger := h.log(ctx, "Payment", "principal_id", principal.UserID, "participation_id", participationID)
	if !h.authorizeParticipation(ctx, w, logger, principal, participationID) {
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode payment request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	p, err := h.service.UpdatePayment(ctx, participationID, participation.Payment(strings.TrimSpace(req.Payment)))
	if err != nil {
		h.fail(ctx, w, logger, "payment update failed", err)
		return
	}

	logger.InfoContext(ctx, "payment updated", "payment", p.Payment)
	h.responder.writeJSON(ctx, w, http.StatusOK, participationResponse{Participation: toParticipationDTO(p)})
}

func (h *ParticipationHandler) authorizeSession(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, principal application.Principal, sessionID string) bool {
	if err := requireAdmin(principal); err != nil {
		h.fail(ctx, w, logger, "admin role required", err)
		return false
	}
	if _, err := scopedSession(ctx, h.sessions, principal, sessionID); err != nil {
		h.fail(ctx, w, logger, "session lookup failed", err)
		return false
	}
	return true
}

func (h *ParticipationHandler) authorizeParticipation(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, principal application.Principal, participationID string) bool {
	if err := requireAdmin(principal); err != nil {
		h.fail(ctx, w, logger, "admin role required", err)
		return false
	}
	if _, err := h.scopedParticipation(ctx, principal, participationID); err != nil {
		h.fail(ctx, w, logger, "participation lookup failed", err)
		return false
	}
	return true
}
