// Package session wires the interview core together: the transcript
// aggregator, the question extractor, the termination detector, and the
// analysis stream client, under a controller that guarantees the terminal
// finalize sequence runs exactly once per session.
package session

// Phase is the lifecycle phase of a session. Phases only move forward; a new
// session id gets a fresh controller rather than a reset.
type Phase int

const (
	// PhaseIdle is the constructed-but-not-started phase.
	PhaseIdle Phase = iota

	// PhaseActive means the interview is running.
	PhaseActive

	// PhaseEnding means a finalize trigger won the race and the terminal
	// sequence is in progress. Further triggers are no-ops.
	PhaseEnding

	// PhaseFinalized means the navigation callback has fired.
	PhaseFinalized
)

// String returns the lowercase name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseEnding:
		return "ending"
	case PhaseFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Event is a lifecycle event applied to a session phase.
type Event int

const (
	// EventStart activates an idle session.
	EventStart Event = iota

	// EventEndTriggered begins the terminal sequence. Only the first
	// occurrence per session is accepted.
	EventEndTriggered

	// EventFinalized records that the navigation callback has fired.
	EventFinalized
)

// transition is the pure phase-transition function. It returns the next
// phase and whether the event is legal from p. Illegal events leave the
// phase unchanged — callers treat them as no-ops, which is what makes
// concurrent finalize triggers collapse to a single execution.
func transition(p Phase, e Event) (Phase, bool) {
	switch e {
	case EventStart:
		if p == PhaseIdle {
			return PhaseActive, true
		}
	case EventEndTriggered:
		if p == PhaseActive {
			return PhaseEnding, true
		}
	case EventFinalized:
		if p == PhaseEnding {
			return PhaseFinalized, true
		}
	}
	return p, false
}

// Trigger identifies which path requested finalization.
type Trigger string

const (
	// TriggerManual is the user's explicit end-interview action.
	TriggerManual Trigger = "manual"

	// TriggerDetected is the automatic termination detector.
	TriggerDetected Trigger = "detected"

	// TriggerTeardown is component disposal or navigation away.
	TriggerTeardown Trigger = "teardown"

	// TriggerAgentTimeout aborts a session whose voice agent never became
	// available.
	TriggerAgentTimeout Trigger = "agent_timeout"
)
