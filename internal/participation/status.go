package participation

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/robbyt/go-fsm"
)

// SessionTransitions lists the legal session status changes. Cancelled and
// completed are terminal.
var SessionTransitions = map[string][]string{
	string(SessionDraft):     {string(SessionPublished), string(SessionCancelled)},
	string(SessionPublished): {string(SessionCompleted), string(SessionCancelled)},
	string(SessionCancelled): {},
	string(SessionCompleted): {},
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	_, ok := SessionTransitions[string(s)]
	return ok
}

// ValidateTransition checks from -> to against the session state machine.
func ValidateTransition(from, to SessionStatus) error {
	if !from.Valid() {
		return fmt.Errorf("unknown session status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("unknown session status %q", to)
	}

	machine, err := fsm.New(discardHandler(), string(from), SessionTransitions)
	if err != nil {
		return fmt.Errorf("build session state machine: %w", err)
	}
	if err := machine.Transition(string(to)); err != nil {
		return fmt.Errorf("session cannot move from %s to %s: %w", from, to, err)
	}
	return nil
}

func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}
