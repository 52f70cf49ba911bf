package monitor

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/boothmesh/scan"
	"github.com/user/boothmesh/session"
	"github.com/user/boothmesh/wire/msg"
)

// Observer adapts a Bus to session.Observer
type Observer struct {
	bus *Bus
}

var _ session.Observer = (*Observer)(nil)

// NewObserver returns an observer publishing to bus
func NewObserver(bus *Bus) *Observer {
	return &Observer{bus: bus}
}

func (o *Observer) StateChanged(node msg.NodeID, from, to session.State) {
	o.bus.Publish(Event{
		Type: EventState,
		Node: int(node),
		Data: map[string]interface{}{"from": from.String(), "to": to.String()},
	})
}

func (o *Observer) MessageReceived(node, src msg.NodeID, m msg.Message) {
	o.bus.Publish(Event{
		Type: EventMessage,
		Node: int(node),
		Data: map[string]interface{}{
			"src":      int(src),
			"tag":      int(m.Tag()),
			"tag_name": msg.TagName(m.Tag()),
		},
	})
}

func (o *Observer) ScanCompleted(node msg.NodeID, sel scan.Selection, booths []scan.DiscoveredBooth) {
	found := make([]map[string]interface{}, 0, len(booths))
	for _, b := range booths {
		found = append(found, map[string]interface{}{"id": int(b.NodeID), "rssi": b.RSSI, "snr": b.SNR})
	}
	o.bus.Publish(Event{
		Type: EventScan,
		Node: int(node),
		Data: map[string]interface{}{
			"found":  sel.Found,
			"best":   int(sel.NodeID),
			"rssi":   sel.RSSI,
			"booths": found,
		},
	})
}

// AdmissionChanged stores a private copy of snapshot; the caller keeps ownership
func (o *Observer) AdmissionChanged(node msg.NodeID, snapshot *structpb.Struct) {
	snap := proto.Clone(snapshot).(*structpb.Struct)
	o.bus.storeSnapshot(int(node), snap)
	o.bus.Publish(Event{
		Type: EventAdmission,
		Node: int(node),
		Data: snap.AsMap(),
	})
}
