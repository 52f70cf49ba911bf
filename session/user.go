package session

import (
	"strings"

	"github.com/user/boothmesh/event"
	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/wire/msg"
)

func (n *Node) userInput(ev InputEvent) {
	switch ev.Kind {
	case InputStartScan, InputConfirm, InputDecline:
		n.userKey(ev.Kind)
	case InputLine:
		n.userLine(ev.Text)
	case InputAdmin:
		logger.Warn(n.prefix, "admin commands are only available on a booth")
	}
}

// userLine maps a typed line onto the action it means in the current state
func (n *Node) userLine(text string) {
	text = strings.TrimRight(text, "\r\n")

	switch n.state {
	case StateScanning:
		switch keyOf(text) {
		case 's':
			n.userKey(InputStartScan)
		case 'y':
			n.userKey(InputConfirm)
		case 'n':
			n.userKey(InputDecline)
		default:
			logger.Debug(n.prefix, "ignoring %q while scanning", text)
		}
		return

	case StateConnected:
		switch {
		case strings.TrimSpace(text) == CommandQuit:
			n.requestQuit()
			return
		case keyOf(text) == 'y':
			n.userKey(InputConfirm)
			return
		case keyOf(text) == 'n':
			n.userKey(InputDecline)
			return
		}

	case StateInUse:
		switch strings.TrimSpace(text) {
		case CommandLeave:
			n.conn.leaveRequested = true
			n.flags.Set(event.DataToSend)
			return
		case CommandQuit:
			n.requestQuit()
			return
		}
	}

	n.queueText(text)
}

func (n *Node) userKey(kind InputKind) {
	switch n.state {
	case StateScanning:
		switch kind {
		case InputStartScan:
			if n.scan.StartScan() {
				n.printf("Scanning for booth nodes...\n")
			}
		case InputConfirm:
			if best := n.scan.Best(); best.Found {
				n.conn.connectionRequested = true
				n.flags.Set(event.DataToSend)
			}
		case InputDecline:
			if n.scan.Completed() {
				n.printf("Scan cancelled. Press 's' to start scanning again.\n")
			}
		}

	case StateConnected:
		switch kind {
		case InputConfirm:
			n.conn.experienceRequested = true
			n.flags.Set(event.DataToSend)
		case InputDecline:
			n.printf("Experience declined. You can still send individual messages.\n")
			n.printf("Give a word to send : ")
		}
	}
}

func (n *Node) requestQuit() {
	n.conn.quitRequested = true
	n.flags.Set(event.DataToSend)
}

func (n *Node) finishScan() {
	sel := n.scan.OnTimerElapsed()
	n.flags.Set(event.ScanComplete)
	n.observer.ScanCompleted(n.id, sel, n.scan.Booths())

	if sel.Found {
		logger.Info(n.prefix, "scan complete, best booth %d (RSSI %d)", sel.NodeID, sel.RSSI)
		n.printf("\n=== BOOTH FOUND ===\n")
		n.printf("Best Booth ID: %d\n", sel.NodeID)
		n.printf("Signal Strength: %d dBm\n", sel.RSSI)
		n.printf("Do you want to connect? (y/n): ")
		return
	}
	logger.Info(n.prefix, "scan complete, no booth found")
	n.printf("\n=== SCAN COMPLETE ===\n")
	n.printf("No booth found.\n")
	n.printf("Try again? (s: rescan, n: cancel): ")
}

func (n *Node) userFrame(m msg.Message, f inbound) {
	switch n.state {
	case StateScanning:
		switch p := m.(type) {
		case *msg.Beacon:
			if p.SenderRole == msg.RoleBooth && n.scan.OnBeacon(f.src, f.rssi, f.snr) {
				logger.Debug(n.prefix, "booth beacon from %d, RSSI: %d", f.src, f.rssi)
			}
		case *msg.ConnectionResponse:
			n.userConnectionResponse(p, f.src)
		case *msg.Announcement:
			n.surfaceAnnouncement(p, f.src, "")
		default:
			logger.Debug(n.prefix, "ignoring %s in %s", msg.TagName(m.Tag()), n.state)
		}

	case StateConnected:
		switch p := m.(type) {
		case *msg.Data:
			n.surfaceData(p, f.src, "Give a word to send : ")
		case *msg.ExperienceResponse:
			n.userExperienceResponse(p, f.src)
		case *msg.Announcement:
			n.surfaceAnnouncement(p, f.src, "Give a word to send : ")
		default:
			logger.Debug(n.prefix, "ignoring %s in %s", msg.TagName(m.Tag()), n.state)
		}

	case StateInUse:
		switch p := m.(type) {
		case *msg.Data:
			n.surfaceData(p, f.src, "Enter message: ")
		case *msg.Broadcast:
			n.surfaceBroadcast(p, f.src, "Enter message: ")
		case *msg.Announcement:
			n.surfaceAnnouncement(p, f.src, "Enter message: ")
		default:
			logger.Debug(n.prefix, "ignoring %s in %s", msg.TagName(m.Tag()), n.state)
		}
	}
}

func (n *Node) userConnectionResponse(p *msg.ConnectionResponse, src msg.NodeID) {
	if p.DestID != n.id {
		logger.Debug(n.prefix, "connection response for %d, not us", p.DestID)
		return
	}
	n.flags.Set(event.ConnectResponse)

	switch p.Status {
	case msg.StatusAccept:
		n.conn.connectedBoothID = src
		n.conn.isConnected = true
		n.flags.Set(event.ConnectionEstablished)
		n.setState(StateConnected)
		logger.Info(n.prefix, "connection accepted by booth %d", src)
		n.printf("[INFO] Connection accepted by Booth %d!\n", src)
		n.printf("Connected! Do you want to experience the booth? (y/n): ")
	case msg.StatusReject:
		logger.Info(n.prefix, "connection rejected by booth %d", src)
		n.printf("[INFO] Connection rejected by Booth %d (may be full)\n", src)
		n.resetConnectionState()
		n.setState(StateScanning)
	default:
		logger.Warn(n.prefix, "connection response with status %d ignored", p.Status)
	}
}

func (n *Node) userExperienceResponse(p *msg.ExperienceResponse, src msg.NodeID) {
	if src != n.conn.connectedBoothID {
		logger.Debug(n.prefix, "experience response from %d, connected to %d", src, n.conn.connectedBoothID)
		return
	}

	switch p.Status {
	case msg.StatusAccept:
		n.conn.inExperience = true
		n.conn.experienceRequested = false
		n.setState(StateInUse)
		logger.Info(n.prefix, "experience accepted by booth %d", src)
		n.printf("[INFO] Experience accepted by Booth %d!\n", src)
		n.printf("=== BOOTH EXPERIENCE STARTED ===\n")
		n.printf("You are now in group chat mode. Send messages to all participants:\n")
		n.printf("Enter message: ")
	case msg.StatusReject:
		n.conn.experienceRequested = false
		logger.Info(n.prefix, "experience rejected by booth %d", src)
		n.printf("[INFO] Experience rejected by Booth %d (capacity full)\n", src)
		n.printf("You can still send individual messages to the booth.\n")
		n.printf("Give a word to send : ")
	default:
		logger.Warn(n.prefix, "experience response with status %d ignored", p.Status)
	}
}

func (n *Node) userSend() {
	switch n.state {
	case StateScanning:
		if n.conn.connectionRequested {
			best := n.scan.Best()
			if best.Found {
				n.resetConnectionState()
				req := &msg.ConnectionRequest{SrcID: n.id, DestID: best.NodeID, Status: msg.StatusRequest}
				if n.send(req, best.NodeID) {
					n.flags.Set(event.ConnectRequest)
					n.printf("[INFO] Connection request sent to Booth %d\n", best.NodeID)
				}
			}
			n.conn.connectionRequested = false
		}
		if len(n.outbox) > 0 {
			logger.Warn(n.prefix, "not connected, discarding %d queued lines", len(n.outbox))
			n.outbox = nil
		}

	case StateConnected:
		booth := n.conn.connectedBoothID
		switch {
		case n.conn.quitRequested:
			n.sendQuit()
		case n.conn.experienceRequested:
			req := &msg.ExperienceRequest{SrcID: n.id, DestID: booth, Status: msg.StatusRequest}
			if n.send(req, booth) {
				n.printf("[INFO] Experience request sent to Booth %d\n", booth)
			}
			n.conn.experienceRequested = false
			if len(n.outbox) > 0 {
				n.flags.Set(event.DataToSend)
			}
		default:
			if text, ok := n.nextText(); ok {
				n.send(&msg.Data{Text: []byte(text)}, booth)
				n.printf("Give a word to send : ")
			}
		}

	case StateInUse:
		booth := n.conn.connectedBoothID
		switch {
		case n.conn.quitRequested:
			n.sendQuit()
		case n.conn.leaveRequested:
			n.conn.leaveRequested = false
			n.outbox = nil
			if n.send(&msg.ExperienceExit{SrcID: n.id, DestID: booth, Status: msg.StatusRequest}, booth) {
				n.conn.inExperience = false
				n.setState(StateConnected)
				n.printf("[INFO] Left the experience at Booth %d\n", booth)
				n.printf("Give a word to send : ")
			}
		default:
			if text, ok := n.nextText(); ok {
				n.send(&msg.Broadcast{SrcID: n.id, Text: []byte(text)}, booth)
				n.printf("Enter message: ")
			}
		}
	}
}

func (n *Node) sendQuit() {
	booth := n.conn.connectedBoothID
	n.send(&msg.Disconnect{SrcID: n.id, DestID: booth, Status: msg.StatusRequest}, booth)
	n.resetConnectionState()
	n.outbox = nil
	n.setState(StateScanning)
	n.printf("[INFO] Disconnected from Booth %d\n", booth)
	n.printf("Press 's' to start scanning for booth nodes...\n")
}

// resetConnectionState clears every connection-local field together
func (n *Node) resetConnectionState() {
	n.conn = userLink{}
}

func (n *Node) surfaceData(p *msg.Data, src msg.NodeID, prompt string) {
	n.printf("\n -------------------------------------------------\n")
	n.printf("RCVD MSG from %d: %s (length:%d)\n", src, p.Text, len(p.Text))
	n.printf(" -------------------------------------------------\n")
	if prompt != "" {
		n.printf("%s", prompt)
	}
}

func (n *Node) surfaceAnnouncement(p *msg.Announcement, src msg.NodeID, prompt string) {
	n.printf("\n[ANNOUNCEMENT from Booth %d]: %s\n", src, p.Text)
	if prompt != "" {
		n.printf("%s", prompt)
	}
}

func (n *Node) surfaceBroadcast(p *msg.Broadcast, src msg.NodeID, prompt string) {
	kind := "User"
	if p.SrcID.IsBooth() {
		kind = "Booth"
	}
	n.printf("\n[BROADCAST from %s %d]: %s\n", kind, p.SrcID, p.Text)
	if prompt != "" {
		n.printf("%s", prompt)
	}
}
