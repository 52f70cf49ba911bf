package session

import "fmt"

// State is the node's top-level protocol state
type State uint8

const (
	StateScanning State = iota
	StateConnected
	StateInUse

	// StateWaiting exists for the admission data model. Queued users are
	// tracked by the Booth only; no node ever enters this state.
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "Scanning"
	case StateConnected:
		return "Connected"
	case StateInUse:
		return "InUse"
	case StateWaiting:
		return "Waiting"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}
