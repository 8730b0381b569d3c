package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

type sessionService interface {
	CreateSession(ctx context.Context, input application.CreateSessionInput) (participation.Session, error)
	GetSession(ctx context.Context, sessionID string) (participation.Session, error)
	ChangeStatus(ctx context.Context, sessionID string, to participation.SessionStatus) (participation.Session, error)
	RescheduleSession(ctx context.Context, params application.RescheduleParams) (participation.Session, []participation.UserConflict, error)
	SoftDeleteSession(ctx context.Context, sessionID string) error
	PreviewConflicts(ctx context.Context, sessionID string, candidate time.Time) ([]participation.UserConflict, error)
}

// SessionHandler serves session management endpoints. Every endpoint except
// Get requires the admin role.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// fail logs err and writes the mapped response.
func (h *SessionHandler) fail(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	logger.WarnContext(ctx, message, "error", err, "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(ctx, w, err)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Create", "principal_id", principal.UserID)
	if err := requireAdmin(principal); err != nil {
		h.fail(ctx, w, logger, "session creation refused", err)
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode session request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput(principal.OrganizationID)
	if err != nil {
		h.fail(ctx, w, logger, "session request rejected", err)
		return
	}

	session, err := h.service.CreateSession(ctx, input)
	if err != nil {
		h.fail(ctx, w, logger, "session creation failed", err)
		return
	}

	logger.With("session_id", session.ID).InfoContext(ctx, "session created")
	h.responder.writeJSON(ctx, w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "Get", "principal_id", principal.UserID, "session_id", sessionID)

	session, err := scopedSession(ctx, h.service, principal, sessionID)
	if err != nil {
		h.fail(ctx, w, logger, "session lookup failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "ChangeStatus", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorize(ctx, w, logger, principal, sessionID) {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode status request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.ChangeStatus(ctx, sessionID, participation.SessionStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		h.fail(ctx, w, logger, "status change failed", err)
		return
	}

	logger.InfoContext(ctx, "session status changed", "status", session.Status)
	h.responder.writeJSON(ctx, w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "Reschedule", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorize(ctx, w, logger, principal, sessionID) {
		return
	}

	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode reschedule request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	at, err := parseTimeField("date_time", req.DateTime)
	if err != nil {
		h.fail(ctx, w, logger, "reschedule request rejected", err)
		return
	}

	session, conflicts, err := h.service.RescheduleSession(ctx, application.RescheduleParams{
		SessionID: sessionID,
		DateTime:  at,
		Force:     req.Force,
	})
	if errors.Is(err, application.ErrConflict) && len(conflicts) > 0 {
		logger.InfoContext(ctx, "reschedule refused because of conflicts", "conflicts", len(conflicts))
		h.responder.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SCHEDULE_CONFLICT",
			Message:   application.PublicMessage(err),
			Conflicts: toConflictDTOs(conflicts),
		})
		return
	}
	if err != nil {
		h.fail(ctx, w, logger, "reschedule failed", err)
		return
	}

	logger.InfoContext(ctx, "session rescheduled", "forced_conflicts", len(conflicts))
	h.responder.writeJSON(ctx, w, http.StatusOK, rescheduleResponse{
		Session:   toSessionDTO(session),
		Conflicts: toConflictDTOs(conflicts),
	})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "Delete", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorize(ctx, w, logger, principal, sessionID) {
		return
	}

	if err := h.service.SoftDeleteSession(ctx, sessionID); err != nil {
		h.fail(ctx, w, logger, "session delete failed", err)
		return
	}

	logger.InfoContext(ctx, "session deleted")
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *SessionHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	sessionID := r.PathValue("id")
	logger := h.log(ctx, "Conflicts", "principal_id", principal.UserID, "session_id", sessionID)
	if !h.authorize(ctx, w, logger, principal, sessionID) {
		return
	}

	candidate, err := parseTimeField("date_time", r.URL.Query().Get("date_time"))
	if err != nil {
		h.fail(ctx, w, logger, "conflict preview rejected", err)
		return
	}

	conflicts, err := h.service.PreviewConflicts(ctx, sessionID, candidate)
	if err != nil {
		h.fail(ctx, w, logger, "conflict preview failed", err)
		return
	}

	logger.With("result_count", len(conflicts)).InfoContext(ctx, "conflicts previewed")
	h.responder.writeJSON(ctx, w, http.StatusOK, conflictsResponse{Conflicts: toConflictDTOs(conflicts)})
}

// authorize checks the admin role and organization scope, writing the error
// response itself when access is denied.
func (h *SessionHandler) authorize(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, principal application.Principal, sessionID string) bool {
	if err := requireAdmin(principal); err != nil {
		h.fail(ctx, w, logger, "admin role required", err)
		return false
	}
	if _, err := scopedSession(ctx, h.service, principal, sessionID); err != nil {
		h.fail(ctx, w, logger, "session lookup failed", err)
		return false
	}
	return true
}
