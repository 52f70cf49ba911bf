// Package wire carries session frames between nodes. A frame is one encoded
// message addressed to a node id or to the broadcast address.
package wire

import (
	"errors"

	"github.com/user/boothmesh/wire/msg"
)

var (
	ErrAddressInUse = errors.New("node id already attached")
	ErrInvalidID    = errors.New("node id not assignable")
	ErrFrameTooLong = errors.New("frame exceeds maximum size")
	ErrClosed       = errors.New("link closed")
)

// MaxFrameSize bounds a single payload
const MaxFrameSize = 512

// Link sends frames on behalf of one node. Send with msg.BroadcastID reaches
// every other node in range. Send reports only local failures; delivery is
// never guaranteed.
type Link interface {
	Send(payload []byte, dest msg.NodeID) error
	LocalID() msg.NodeID
}

// Receiver consumes link callbacks. Callbacks may arrive on any goroutine;
// implementations copy payload and return quickly.
type Receiver interface {
	OnReceive(payload []byte, src msg.NodeID, rssi int16, snr int8)
	OnSendConfirm(err error)
}

// ReconfigureReceiver is notified when a link finishes changing its address
type ReconfigureReceiver interface {
	OnReconfigured(err error)
}

func checkFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLong
	}
	return nil
}
