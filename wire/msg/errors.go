package msg

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed matches every MalformedError
	ErrMalformed = errors.New("malformed message")

	// ErrTextTooLong is returned when text does not fit the one-byte length field
	ErrTextTooLong = errors.New("text exceeds 255 bytes")

	// ErrUnsupported is returned when encoding a value that is not a known message
	ErrUnsupported = errors.New("unsupported message type")
)

// MalformedError describes a payload shorter than its tag's layout
type MalformedError struct {
	Tag  Tag
	Got  int
	Want int
}

func (e *MalformedError) Error() string {
	if e.Got == 0 {
		return "malformed message: empty payload"
	}
	return fmt.Sprintf("malformed %s (0x%02X): got %d bytes, want at least %d",
		TagName(e.Tag), uint8(e.Tag), e.Got, e.Want)
}

// Is lets errors.Is(err, ErrMalformed) match
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}
