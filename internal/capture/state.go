package capture

import "fmt"

// State is where the orchestrator is in the capture lifecycle.
type State int

const (
	Idle State = iota
	Guarding
	Busy
	Capturing
	Recognizing
	Extracting
	Done
	// Disabled is terminal: the camera never came up.
	Disabled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Guarding:
		return "guarding"
	case Busy:
		return "busy"
	case Capturing:
		return "capturing"
	case Recognizing:
		return "recognizing"
	case Extracting:
		return "extracting"
	case Done:
		return "done"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Idle:
		return to == Guarding || to == Disabled
	case Guarding:
		return to == Busy || to == Idle
	case Busy:
		return to == Capturing || to == Done
	case Capturing:
		return to == Recognizing || to == Done
	case Recognizing:
		return to == Extracting || to == Done
	case Extracting:
		return to == Done
	case Done:
		return to == Idle
	default:
		return false
	}
}
