package msg

import (
	"bytes"
	"fmt"
)

// Message is implemented by every L3 message variant
type Message interface {
	Tag() Tag
}

// Beacon is broadcast periodically by a Booth (0x10)
type Beacon struct {
	SenderID   NodeID
	SenderRole Role
	Reserved   uint8
}

// ConnectionRequest asks a Booth for a connection slot (0x11)
type ConnectionRequest struct {
	SrcID  NodeID
	DestID NodeID
	Status uint8
}

// ConnectionResponse answers a ConnectionRequest with StatusAccept or StatusReject (0x12)
type ConnectionResponse struct {
	SrcID  NodeID
	DestID NodeID
	Status uint8
}

// Disconnect releases a User's connection slot (0x13)
type Disconnect struct {
	SrcID  NodeID
	DestID NodeID
	Status uint8
}

// Data carries raw text between connected peers (0x20)
type Data struct {
	Text []byte
}

// Announcement is an operator notice from a Booth (0x30)
type Announcement struct {
	SrcID NodeID
	Text  []byte
}

// Broadcast is a group-session chat line (0x40)
type Broadcast struct {
	SrcID NodeID
	Text  []byte
}

// ExperienceRequest asks a Booth to join its group session (0x50)
type ExperienceRequest struct {
	SrcID  NodeID
	DestID NodeID
	Status uint8
}

// ExperienceResponse answers an ExperienceRequest (0x51)
type ExperienceResponse struct {
	SrcID  NodeID
	DestID NodeID
	Status uint8
}

// ExperienceExit ends a User's group session (0x52)
type ExperienceExit struct {
	SrcID  NodeID
	DestID NodeID
	Status uint8
}

// Unrecognized is returned for tags this node does not understand.
// Callers must drop it without replying.
type Unrecognized struct {
	RawTag Tag
	Body   []byte
}

func (*Beacon) Tag() Tag             { return TagBeacon }
func (*ConnectionRequest) Tag() Tag  { return TagConnectionRequest }
func (*ConnectionResponse) Tag() Tag { return TagConnectionResponse }
func (*Disconnect) Tag() Tag         { return TagDisconnect }
func (*Data) Tag() Tag               { return TagData }
func (*Announcement) Tag() Tag       { return TagAnnouncement }
func (*Broadcast) Tag() Tag          { return TagBroadcast }
func (*ExperienceRequest) Tag() Tag  { return TagExperienceRequest }
func (*ExperienceResponse) Tag() Tag { return TagExperienceResponse }
func (*ExperienceExit) Tag() Tag     { return TagExperienceExit }
func (u *Unrecognized) Tag() Tag     { return u.RawTag }

// Encode serializes a message to its fixed wire layout
func Encode(m Message) ([]byte, error) {
	switch p := m.(type) {
	case *Beacon:
		return []byte{byte(TagBeacon), byte(p.SenderID), byte(p.SenderRole), p.Reserved}, nil

	case *ConnectionRequest:
		return encodeControl(TagConnectionRequest, p.SrcID, p.DestID, p.Status), nil
	case *ConnectionResponse:
		return encodeControl(TagConnectionResponse, p.SrcID, p.DestID, p.Status), nil
	case *Disconnect:
		return encodeControl(TagDisconnect, p.SrcID, p.DestID, p.Status), nil
	case *ExperienceRequest:
		return encodeControl(TagExperienceRequest, p.SrcID, p.DestID, p.Status), nil
	case *ExperienceResponse:
		return encodeControl(TagExperienceResponse, p.SrcID, p.DestID, p.Status), nil
	case *ExperienceExit:
		return encodeControl(TagExperienceExit, p.SrcID, p.DestID, p.Status), nil

	case *Data:
		buf := make([]byte, 1+len(p.Text))
		buf[0] = byte(TagData)
		copy(buf[1:], p.Text)
		return buf, nil

	case *Announcement:
		return encodeText(TagAnnouncement, p.SrcID, p.Text)
	case *Broadcast:
		return encodeText(TagBroadcast, p.SrcID, p.Text)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, m)
	}
}

// Decode parses a received payload. The link layer supplies the size as len(data).
// An unknown tag decodes to *Unrecognized with a nil error.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, &MalformedError{}
	}

	tag := Tag(data[0])
	want, known := minLen(tag)
	if !known {
		body := make([]byte, len(data)-1)
		copy(body, data[1:])
		return &Unrecognized{RawTag: tag, Body: body}, nil
	}
	if len(data) < want {
		return nil, &MalformedError{Tag: tag, Got: len(data), Want: want}
	}

	switch tag {
	case TagBeacon:
		return &Beacon{SenderID: NodeID(data[1]), SenderRole: Role(data[2]), Reserved: data[3]}, nil

	case TagConnectionRequest:
		return &ConnectionRequest{SrcID: NodeID(data[1]), DestID: NodeID(data[2]), Status: data[3]}, nil
	case TagConnectionResponse:
		return &ConnectionResponse{SrcID: NodeID(data[1]), DestID: NodeID(data[2]), Status: data[3]}, nil
	case TagDisconnect:
		return &Disconnect{SrcID: NodeID(data[1]), DestID: NodeID(data[2]), Status: data[3]}, nil
	case TagExperienceRequest:
		return &ExperienceRequest{SrcID: NodeID(data[1]), DestID: NodeID(data[2]), Status: data[3]}, nil
	case TagExperienceResponse:
		return &ExperienceResponse{SrcID: NodeID(data[1]), DestID: NodeID(data[2]), Status: data[3]}, nil
	case TagExperienceExit:
		return &ExperienceExit{SrcID: NodeID(data[1]), DestID: NodeID(data[2]), Status: data[3]}, nil

	case TagData:
		text := bytes.TrimRight(data[1:], "\x00")
		out := make([]byte, len(text))
		copy(out, text)
		return &Data{Text: out}, nil

	case TagAnnouncement:
		src, text, err := decodeText(tag, data)
		if err != nil {
			return nil, err
		}
		return &Announcement{SrcID: src, Text: text}, nil
	case TagBroadcast:
		src, text, err := decodeText(tag, data)
		if err != nil {
			return nil, err
		}
		return &Broadcast{SrcID: src, Text: text}, nil
	}

	// unreachable: minLen covers every known tag
	return nil, &MalformedError{Tag: tag, Got: len(data), Want: want}
}

func encodeControl(tag Tag, src, dest NodeID, status uint8) []byte {
	return []byte{byte(tag), byte(src), byte(dest), status}
}

func encodeText(tag Tag, src NodeID, text []byte) ([]byte, error) {
	if len(text) > MaxTextLen {
		return nil, fmt.Errorf("encode %s: %w (%d)", TagName(tag), ErrTextTooLong, len(text))
	}
	buf := make([]byte, textHeaderLen+len(text))
	buf[0] = byte(tag)
	buf[1] = byte(src)
	buf[2] = byte(len(text))
	copy(buf[textHeaderLen:], text)
	return buf, nil
}

func decodeText(tag Tag, data []byte) (NodeID, []byte, error) {
	n := int(data[2])
	if len(data) < textHeaderLen+n {
		return 0, nil, &MalformedError{Tag: tag, Got: len(data), Want: textHeaderLen + n}
	}
	text := make([]byte, n)
	copy(text, data[textHeaderLen:textHeaderLen+n])
	return NodeID(data[1]), text, nil
}
