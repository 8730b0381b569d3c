// Package http provides HTTP handlers and middleware for the gatherly API.
//
// Callers are identified by headers set by the trusted gateway:
// X-User-ID, X-Organization-ID and X-User-Role ("admin" grants the admin
// role). Sessions of other organizations are reported as not found.
//
// The router exposes the following endpoints:
//   - POST /sessions, GET /sessions/{id}, DELETE /sessions/{id}: session
//     management exchanging the `sessionDTO` payload defined in dto.go. Only
//     GET is open to members.
//   - POST /sessions/{id}/status, POST /sessions/{id}/reschedule,
//     GET /sessions/{id}/conflicts?date_time=: lifecycle transitions,
//     conflict checked rescheduling (body {"date_time","force"}) and conflict
//     previews. Admin only.
//   - POST /sessions/{id}/join, GET /sessions/{id}/waitlist-position: member
//     self service. Joining is idempotent and answers 200 with the active
//     participation.
//   - GET|POST /sessions/{id}/participants, POST /sessions/{id}/attendance:
//     admin listing (?status=joined,waitlisted), admin add (body {"user_id"})
//     and bulk attendance (body {"updates":[{"participation_id","attendance"}]}).
//   - POST /participations/{id}/cancel: cancels the caller's own participation.
//   - POST /participations/{id}/approve|reject|move|payment: admin review,
//     moves (body {"target_session_id"}) and payment marks (body {"payment"}).
//
// Service errors map to 404 (not found), 400 (bad request), 409 (conflict),
// 403 (admin required), 422 (validation) and 500 otherwise.
package http
