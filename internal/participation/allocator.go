package participation

// Outcome is the decision of the capacity allocator.
type Outcome int

const (
	// OutcomeExhausted means neither a seat nor a waitlist slot is available.
	OutcomeExhausted Outcome = iota
	OutcomeJoined
	OutcomeWaitlisted
)

// Status converts a successful outcome into the participation status to store.
func (o Outcome) Status() (Status, bool) {
	switch o {
	case OutcomeJoined:
		return StatusJoined, true
	case OutcomeWaitlisted:
		return StatusWaitlisted, true
	}
	return "", false
}

func (o Outcome) String() string {
	switch o {
	case OutcomeJoined:
		return "joined"
	case OutcomeWaitlisted:
		return "waitlisted"
	default:
		return "exhausted"
	}
}

// Allocate decides where a new participant lands given the current counts and
// the session limits. Callers must read counts after locking the session.
func Allocate(counts Counts, maxCapacity, maxWaitlist int) Outcome {
	if counts.Joined < maxCapacity {
		return OutcomeJoined
	}
	if counts.Waitlisted < maxWaitlist {
		return OutcomeWaitlisted
	}
	return OutcomeExhausted
}
