package session

import "strings"

// InputKind classifies an application input event
type InputKind uint8

const (
	InputStartScan InputKind = iota // 's'
	InputConfirm                    // 'y'
	InputDecline                    // 'n'
	InputLine                       // a completed text line
	InputAdmin                      // a Booth operator command line
)

func (k InputKind) String() string {
	switch k {
	case InputStartScan:
		return "start-scan"
	case InputConfirm:
		return "confirm"
	case InputDecline:
		return "decline"
	case InputLine:
		return "line"
	case InputAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// InputEvent is one unit of application input
type InputEvent struct {
	Kind InputKind
	Text string
}

// Line wraps a completed text line
func Line(text string) InputEvent {
	return InputEvent{Kind: InputLine, Text: text}
}

// Admin wraps an operator command line
func Admin(text string) InputEvent {
	return InputEvent{Kind: InputAdmin, Text: text}
}

// User control lines
const (
	CommandLeave = "/leave"
	CommandQuit  = "/quit"
)

// keyOf reduces a line to a single lower-case key, or 0 if it is longer
func keyOf(text string) byte {
	t := strings.TrimSpace(text)
	if len(t) != 1 {
		return 0
	}
	return strings.ToLower(t)[0]
}
