package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Mostafa-DE/gatherly-sub002/internal/application"
	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

type sessionReader interface {
	GetSession(ctx context.Context, sessionID string) (participation.Session, error)
}

var errSessionNotFound = &application.ServiceError{Kind: application.ErrNotFound, Message: "session not found"}

func requireAdmin(principal application.Principal) error {
	if !principal.IsAdmin {
		return &application.ServiceError{Kind: application.ErrUnauthorized, Message: errAdminRequired.Error()}
	}
	return nil
}

// scopedSession loads a session and hides it from callers of other
// organizations.
func scopedSession(ctx context.Context, sessions sessionReader, principal application.Principal, sessionID string) (participation.Session, error) {
	session, err := sessions.GetSession(ctx, sessionID)
	if err != nil {
		return participation.Session{}, err
	}
	if session.OrganizationID != principal.OrganizationID {
		return participation.Session{}, errSessionNotFound
	}
	return session, nil
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
