package session

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/boothmesh/scan"
	"github.com/user/boothmesh/wire/msg"
)

// Observer receives copies of notable node events. Calls are made from the
// dispatch loop and must not block.
type Observer interface {
	StateChanged(node msg.NodeID, from, to State)
	MessageReceived(node, src msg.NodeID, m msg.Message)
	ScanCompleted(node msg.NodeID, sel scan.Selection, booths []scan.DiscoveredBooth)
	AdmissionChanged(node msg.NodeID, snapshot *structpb.Struct)
}

type nopObserver struct{}

func (nopObserver) StateChanged(msg.NodeID, State, State)                            {}
func (nopObserver) MessageReceived(msg.NodeID, msg.NodeID, msg.Message)              {}
func (nopObserver) ScanCompleted(msg.NodeID, scan.Selection, []scan.DiscoveredBooth) {}
func (nopObserver) AdmissionChanged(msg.NodeID, *structpb.Struct)                    {}
