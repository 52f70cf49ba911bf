package session

import (
	"errors"

	"github.com/user/boothmesh/admission"
	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/wire/msg"
)

func (n *Node) sendBeacon() {
	beacon := &msg.Beacon{SenderID: n.id, SenderRole: msg.RoleBooth}
	payload, err := msg.Encode(beacon)
	if err != nil {
		logger.Warn(n.prefix, "cannot encode beacon: %v", err)
		return
	}
	if err := n.link.Send(payload, msg.BroadcastID); err != nil {
		logger.Warn(n.prefix, "beacon send failed: %v", err)
		return
	}
	logger.Trace(n.prefix, "beacon sent")
}

func (n *Node) boothInput(ev InputEvent) {
	switch ev.Kind {
	case InputAdmin:
		if err := n.console.Execute(ev.Text); err != nil {
			logger.Debug(n.prefix, "admin: %v", err)
		}
	case InputLine:
		n.queueText(ev.Text)
	default:
		logger.Debug(n.prefix, "booth ignores %s input", ev.Kind)
	}
}

// boothFrame handles a message in any state. The booth's state only
// reflects its admission sets and never gates what it accepts.
func (n *Node) boothFrame(m msg.Message, f inbound) {
	switch p := m.(type) {
	case *msg.ConnectionRequest:
		n.boothConnectionRequest(f)
	case *msg.ExperienceRequest:
		n.boothExperienceRequest(f.src)
	case *msg.ExperienceExit:
		n.boothExperienceExit(f.src)
	case *msg.Disconnect:
		n.boothDisconnect(f.src)
	case *msg.Data:
		n.surfaceData(p, f.src, "")
	case *msg.Broadcast:
		n.boothBroadcast(p, f.src)
	default:
		logger.Debug(n.prefix, "ignoring %s in %s", msg.TagName(m.Tag()), n.state)
	}
}

func (n *Node) boothConnectionRequest(f inbound) {
	status := msg.StatusAccept
	if err := n.admission.AddUser(f.src, f.rssi, f.snr); err != nil {
		status = msg.StatusReject
		if errors.Is(err, admission.ErrAlreadyPresent) {
			// a retry from a user we already hold; confirm the existing slot
			status = msg.StatusAccept
		}
	}

	if status == msg.StatusAccept {
		n.printf("[INFO] Connection request from User %d. Accepting...\n", f.src)
	} else {
		n.printf("[INFO] Connection request from User %d. Rejecting (capacity full)...\n", f.src)
	}
	n.send(&msg.ConnectionResponse{SrcID: n.id, DestID: f.src, Status: status}, f.src)
	n.admissionChanged()
}

func (n *Node) boothExperienceRequest(src msg.NodeID) {
	status, err := n.admission.MoveToInUse(src)

	switch {
	case err == nil && status == admission.StatusInUse:
		n.printf("[INFO] Experience request from User %d. Accepting...\n", src)
		n.send(&msg.ExperienceResponse{SrcID: n.id, DestID: src, Status: msg.StatusAccept}, src)
	case err == nil && status == admission.StatusWaiting:
		rec, _ := n.admission.FindUser(src)
		n.printf("[INFO] Experience request from User %d. Booth full, queued as #%d\n", src, rec.WaitingNumber)
		n.send(&msg.ExperienceResponse{SrcID: n.id, DestID: src, Status: msg.StatusReject}, src)
	default:
		n.printf("[INFO] Experience request from User %d. Rejecting...\n", src)
		n.send(&msg.ExperienceResponse{SrcID: n.id, DestID: src, Status: msg.StatusReject}, src)
	}
	n.admissionChanged()
}

func (n *Node) boothExperienceExit(src msg.NodeID) {
	promoted, ok, err := n.admission.ExitFromInUse(src)
	if err != nil {
		return
	}
	n.printf("[INFO] User %d left the experience\n", src)

	if ok {
		n.printf("[INFO] User %d promoted from the waiting queue\n", promoted)
		n.send(&msg.ExperienceResponse{SrcID: n.id, DestID: promoted, Status: msg.StatusAccept}, promoted)
	}
	n.admissionChanged()
}

func (n *Node) boothDisconnect(src msg.NodeID) {
	if err := n.admission.RemoveUser(src); err != nil {
		return
	}
	n.printf("[INFO] User %d disconnected\n", src)
	n.admissionChanged()
}

// boothBroadcast surfaces a group-session line and relays it to the other members
func (n *Node) boothBroadcast(p *msg.Broadcast, src msg.NodeID) {
	n.surfaceBroadcast(p, src, "")

	rec, found := n.admission.FindUser(src)
	if !found || rec.Status != admission.StatusInUse {
		logger.Debug(n.prefix, "broadcast from %d who is not in the experience, not relayed", src)
		return
	}

	relayed := 0
	for _, member := range n.admission.InUse() {
		if member.UserID == src {
			continue
		}
		if n.send(p, member.UserID) {
			relayed++
		}
	}
	logger.Debug(n.prefix, "broadcast from %d relayed to %d members", src, relayed)
}

func (n *Node) boothSend() {
	text, ok := n.nextText()
	if !ok {
		return
	}

	switch n.state {
	case StateConnected:
		members := n.admission.Connected()
		for _, rec := range members {
			n.send(&msg.Data{Text: []byte(text)}, rec.UserID)
		}
		logger.Debug(n.prefix, "message sent to %d connected users: %s", len(members), text)
	case StateInUse:
		members := n.admission.InUse()
		for _, rec := range members {
			n.send(&msg.Broadcast{SrcID: n.id, Text: []byte(text)}, rec.UserID)
		}
		logger.Debug(n.prefix, "broadcast sent to %d experience users: %s", len(members), text)
	default:
		logger.Warn(n.prefix, "no connected users, discarding %q", text)
	}
}

// admissionChanged re-derives the booth state from its admission sets and
// publishes a snapshot
func (n *Node) admissionChanged() {
	c := n.admission.Counters()
	switch {
	case c.ActiveUsers > 0:
		n.setState(StateInUse)
	case c.CurrentUsers > 0:
		n.setState(StateConnected)
	default:
		n.setState(StateScanning)
	}

	if snap, err := n.admission.Snapshot(); err == nil {
		logger.TraceJSON(n.prefix, "admission", snap)
		n.observer.AdmissionChanged(n.id, snap)
	}
}
