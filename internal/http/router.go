package http

import (
	"net/http"
)

type RouterConfig struct {
	Sessions       *SessionHandler
	Participations *ParticipationHandler
	Middleware     []func(http.Handler) http.Handler
}

// NewRouter registers every endpoint on a method aware ServeMux. Unsupported
// methods on a known path get 405 with an Allow header from the mux.
// The health probe sits outside the middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Sessions != nil {
		mux.HandleFunc("POST /sessions", cfg.Sessions.Create)
		mux.HandleFunc("GET /sessions/{id}", cfg.Sessions.Get)
		mux.HandleFunc("DELETE /sessions/{id}", cfg.Sessions.Delete)
		mux.HandleFunc("POST /sessions/{id}/status", cfg.Sessions.ChangeStatus)
		mux.HandleFunc("POST /sessions/{id}/reschedule", cfg.Sessions.Reschedule)
		mux.HandleFunc("GET /sessions/{id}/conflicts", cfg.Sessions.Conflicts)
	}

	if cfg.Participations != nil {
		mux.HandleFunc("POST /sessions/{id}/join", cfg.Participations.Join)
		mux.HandleFunc("GET /sessions/{id}/participants", cfg.Participations.List)
		mux.HandleFunc("POST /sessions/{id}/participants", cfg.Participations.AdminAdd)
		mux.HandleFunc("POST /sessions/{id}/attendance", cfg.Participations.Attendance)
		mux.HandleFunc("GET /sessions/{id}/waitlist-position", cfg.Participations.WaitlistPosition)
		mux.HandleFunc("POST /participations/{id}/cancel", cfg.Participations.Cancel)
		mux.HandleFunc("POST /participations/{id}/approve", cfg.Participations.Approve)
		mux.HandleFunc("POST /participations/{id}/reject", cfg.Participations.Reject)
		mux.HandleFunc("POST /participations/{id}/move", cfg.Participations.Move)
		mux.HandleFunc("POST /participations/{id}/payment", cfg.Participations.Payment)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	root.Handle("/", handler)
	return root
}
