package dispatch

import "fmt"

// State is the worker lifecycle state. It only moves forward.
type State int32

// Worker states.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	State      State  `json:"state"`
	QueueDepth int    `json:"queue_depth"`
	Submitted  uint64 `json:"submitted"`
	Rejected   uint64 `json:"rejected"`
	Executed   uint64 `json:"executed"`
	Failed     uint64 `json:"failed"`
	Abandoned  uint64 `json:"abandoned"`
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateRunning, StateDraining, StateStopped} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("dispatch: unknown state %q", text)
}
