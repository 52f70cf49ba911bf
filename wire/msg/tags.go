package msg

// Tag is the first byte of every L3 message
type Tag uint8

// Message tags
const (
	TagBeacon             Tag = 0x10
	TagConnectionRequest  Tag = 0x11
	TagConnectionResponse Tag = 0x12
	TagDisconnect         Tag = 0x13
	TagData               Tag = 0x20
	TagAnnouncement       Tag = 0x30
	TagBroadcast          Tag = 0x40
	TagExperienceRequest  Tag = 0x50
	TagExperienceResponse Tag = 0x51
	TagExperienceExit     Tag = 0x52
)

// Request/response status byte
const (
	StatusRequest uint8 = 0
	StatusAccept  uint8 = 1
	StatusReject  uint8 = 2
)

// Layout sizes, tag included
const (
	controlLen    = 4 // tag, src, dest, status
	beaconLen     = 4 // tag, sender, role, reserved
	textHeaderLen = 3 // tag, src, length

	// MaxTextLen is the largest text a length-prefixed message can carry
	MaxTextLen = 255
)

// TagNames maps tags to human-readable names
var TagNames = map[Tag]string{
	TagBeacon:             "Beacon",
	TagConnectionRequest:  "Connection Request",
	TagConnectionResponse: "Connection Response",
	TagDisconnect:         "Disconnect",
	TagData:               "Data",
	TagAnnouncement:       "Announcement",
	TagBroadcast:          "Broadcast",
	TagExperienceRequest:  "Experience Request",
	TagExperienceResponse: "Experience Response",
	TagExperienceExit:     "Experience Exit",
}

// TagName returns the name of a tag, or "Unknown" for unrecognized values
func TagName(tag Tag) string {
	if name, ok := TagNames[tag]; ok {
		return name
	}
	return "Unknown"
}

// minLen returns the minimum encoded size for a known tag
func minLen(tag Tag) (int, bool) {
	switch tag {
	case TagBeacon:
		return beaconLen, true
	case TagConnectionRequest, TagConnectionResponse, TagDisconnect,
		TagExperienceRequest, TagExperienceResponse, TagExperienceExit:
		return controlLen, true
	case TagData:
		return 1, true
	case TagAnnouncement, TagBroadcast:
		return textHeaderLen, true
	default:
		return 0, false
	}
}
