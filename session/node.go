// Package session runs the Booth/User protocol state machine. All protocol
// state is owned by a single dispatch loop; link, timer and input producers
// only queue copied data and raise event flags.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/user/boothmesh/admin"
	"github.com/user/boothmesh/admission"
	"github.com/user/boothmesh/event"
	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/scan"
	"github.com/user/boothmesh/wire"
	"github.com/user/boothmesh/wire/msg"
)

const (
	// MaxTextSize bounds one outbound text line; longer input is flushed in pieces
	MaxTextSize = 100

	// DefaultCapacity is the Booth's in-use capacity when none is configured
	DefaultCapacity = 5

	// maxInbox bounds frames received but not yet processed
	maxInbox = 32
)

// Timer is the restartable countdown used for scans and beacons
type Timer interface {
	Start()
}

// Config wires a Node to its collaborators
type Config struct {
	ID       msg.NodeID
	Capacity int // Booth only; DefaultCapacity when zero

	Link     wire.Link
	Timer    Timer
	Output   io.Writer // application output, os.Stdout when nil
	Observer Observer

	// Clock replaces time.Now in admission bookkeeping
	Clock func() time.Time
}

type inbound struct {
	payload []byte
	src     msg.NodeID
	rssi    int16
	snr     int8
}

// userLink is the User's connection-local state
type userLink struct {
	connectedBoothID    msg.NodeID
	isConnected         bool
	connectionRequested bool
	experienceRequested bool
	inExperience        bool

	leaveRequested bool
	quitRequested  bool
}

// Node is one Booth or User
type Node struct {
	id     msg.NodeID
	role   msg.Role
	prefix string

	state    State
	flags    event.Flags
	link     wire.Link
	timer    Timer
	out      io.Writer
	observer Observer

	// producer side, guarded by mu
	mu          sync.Mutex
	inbox       []inbound
	inputs      []InputEvent
	sendErr     error
	reconfigErr error
	wake        chan struct{}

	// outbound text lines awaiting the send handler
	outbox []string

	// User role
	scan *scan.Engine
	conn userLink

	// Booth role
	admission *admission.Manager
	console   *admin.Console
}

// New creates a node in Scanning. The role follows from the id range.
func New(cfg Config) (*Node, error) {
	if !cfg.ID.Valid() {
		return nil, fmt.Errorf("node id %d is reserved", cfg.ID)
	}
	if cfg.Link == nil {
		return nil, fmt.Errorf("node %d: link is required", cfg.ID)
	}
	if cfg.Timer == nil {
		return nil, fmt.Errorf("node %d: timer is required", cfg.ID)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	n := &Node{
		id:       cfg.ID,
		role:     cfg.ID.Role(),
		prefix:   cfg.ID.Short(),
		state:    StateScanning,
		link:     cfg.Link,
		timer:    cfg.Timer,
		out:      cfg.Output,
		observer: cfg.Observer,
		wake:     make(chan struct{}, 1),
	}

	if n.role == msg.RoleBooth {
		capacity := cfg.Capacity
		if capacity == 0 {
			capacity = DefaultCapacity
		}
		var opts []admission.Option
		if cfg.Clock != nil {
			opts = append(opts, admission.WithClock(cfg.Clock))
		}
		m, err := admission.New(cfg.ID, capacity, opts...)
		if err != nil {
			return nil, err
		}
		n.admission = m
		n.console = admin.NewConsole(m, cfg.Link, cfg.Output)
	} else {
		n.scan = scan.NewEngine(cfg.ID, cfg.Timer)
	}

	return n, nil
}

// Start prints the role banner. A Booth also starts its beacon cycle.
func (n *Node) Start() {
	if n.role == msg.RoleBooth {
		n.printf("=== BOOTH NODE (ID: %d) ===\n", n.id)
		n.printf("Booth capacity: %d users\n", n.admission.Capacity())
		n.printf("Waiting for user connections...\n")
		n.timer.Start()
		logger.Info(n.prefix, "booth started, beacon cycle running")
		return
	}
	n.printf("=== USER NODE (ID: %d) ===\n", n.id)
	n.printf("Press 's' to start scanning for booth nodes...\n")
	logger.Info(n.prefix, "user started")
}

// ID returns the node's address
func (n *Node) ID() msg.NodeID { return n.id }

// Role returns the node's role
func (n *Node) Role() msg.Role { return n.role }

// State returns the current top-level state. Loop side only.
func (n *Node) State() State { return n.state }

// Admission returns the Booth's admission manager, nil for a User. Loop side only.
func (n *Node) Admission() *admission.Manager { return n.admission }

// Scan returns the User's scan engine, nil for a Booth. Loop side only.
func (n *Node) Scan() *scan.Engine { return n.scan }

// ConnectedBooth returns the booth a User is connected to
func (n *Node) ConnectedBooth() (msg.NodeID, bool) {
	return n.conn.connectedBoothID, n.conn.isConnected
}

// Flags exposes the node's event flags for inspection
func (n *Node) Flags() *event.Flags { return &n.flags }

// OnReceive queues a copy of an inbound frame. Safe from any goroutine.
func (n *Node) OnReceive(payload []byte, src msg.NodeID, rssi int16, snr int8) {
	frame := inbound{payload: append([]byte(nil), payload...), src: src, rssi: rssi, snr: snr}

	n.mu.Lock()
	if len(n.inbox) >= maxInbox {
		n.mu.Unlock()
		logger.Warn(n.prefix, "inbox full, dropping frame from %d", src)
		return
	}
	n.inbox = append(n.inbox, frame)
	n.flags.Set(event.MsgReceived)
	n.mu.Unlock()

	n.signal()
}

// OnSendConfirm records the link's transmit result. Safe from any goroutine.
func (n *Node) OnSendConfirm(err error) {
	n.mu.Lock()
	n.sendErr = err
	n.mu.Unlock()
	n.flags.Set(event.DataSendConfirmed)
	n.signal()
}

// OnReconfigured records the result of a link address change. Safe from any goroutine.
func (n *Node) OnReconfigured(err error) {
	n.mu.Lock()
	n.reconfigErr = err
	n.mu.Unlock()
	n.flags.Set(event.ReconfigSrcIDConfirmed)
	n.signal()
}

// OnTimerExpired signals countdown expiry. Safe from any goroutine.
func (n *Node) OnTimerExpired() {
	n.flags.Set(event.TimerExpired)
	n.signal()
}

// Input queues an application input event. Safe from any goroutine.
func (n *Node) Input(ev InputEvent) {
	n.mu.Lock()
	n.inputs = append(n.inputs, ev)
	n.flags.Set(event.InputReady)
	n.mu.Unlock()
	n.signal()
}

func (n *Node) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Step runs one dispatch pass: timer, input, then the state handler
// (a received message takes priority over a pending send), then the
// informational flags. It reports whether any work was done.
func (n *Node) Step() bool {
	worked := false
	before := n.state

	if n.flags.Check(event.TimerExpired) {
		n.flags.Clear(event.TimerExpired)
		n.handleTimer()
		worked = true
	}

	if n.flags.Check(event.InputReady) {
		for _, ev := range n.takeInputs() {
			n.handleInput(ev)
		}
		worked = true
	}

	if n.flags.Check(event.MsgReceived) {
		if f, ok := n.popFrame(); ok {
			n.handleFrame(f)
		}
		worked = true
	} else if n.flags.Check(event.DataToSend) {
		n.flags.Clear(event.DataToSend)
		n.handleSend()
		worked = true
	}

	if n.handleInformational() {
		worked = true
	}

	if n.state != before {
		logger.Debug(n.prefix, "state transition from %s to %s", before, n.state)
	}
	logger.Trace(n.prefix, "step done, flags=%s", n.flags.String())
	return worked
}

// Drain steps until there is nothing left to do
func (n *Node) Drain() {
	for n.Step() {
	}
}

// Run drives the dispatch loop until ctx is cancelled
func (n *Node) Run(ctx context.Context) error {
	for {
		n.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.wake:
		}
	}
}

func (n *Node) takeInputs() []InputEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	inputs := n.inputs
	n.inputs = nil
	n.flags.Clear(event.InputReady)
	return inputs
}

// popFrame takes the oldest inbound frame; the flag stays raised while more remain
func (n *Node) popFrame() (inbound, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.inbox) == 0 {
		n.flags.Clear(event.MsgReceived)
		return inbound{}, false
	}
	f := n.inbox[0]
	n.inbox = n.inbox[1:]
	if len(n.inbox) == 0 {
		n.flags.Clear(event.MsgReceived)
	}
	return f, true
}

func (n *Node) handleTimer() {
	if n.role == msg.RoleBooth {
		n.sendBeacon()
		n.timer.Start()
		return
	}
	if n.scan.InProgress() {
		n.finishScan()
	}
}

func (n *Node) handleInput(ev InputEvent) {
	logger.Trace(n.prefix, "input %s %q", ev.Kind, ev.Text)
	if n.role == msg.RoleBooth {
		n.boothInput(ev)
		return
	}
	n.userInput(ev)
}

func (n *Node) handleFrame(f inbound) {
	m, err := msg.Decode(f.payload)
	if err != nil {
		logger.Warn(n.prefix, "dropping malformed frame from %d: %v", f.src, err)
		return
	}
	if u, ok := m.(*msg.Unrecognized); ok {
		logger.Warn(n.prefix, "unknown message type 0x%02X from %d in %s, ignoring", uint8(u.RawTag), f.src, n.state)
		return
	}

	logger.Debug(n.prefix, "received %s from %d (RSSI: %d, SNR: %d)", msg.TagName(m.Tag()), f.src, f.rssi, f.snr)
	n.observer.MessageReceived(n.id, f.src, m)

	if n.role == msg.RoleBooth {
		n.boothFrame(m, f)
		return
	}
	n.userFrame(m, f)
}

func (n *Node) handleSend() {
	if n.role == msg.RoleBooth {
		n.boothSend()
		return
	}
	n.userSend()
}

// handleInformational consumes flags that carry no work of their own
func (n *Node) handleInformational() bool {
	worked := false

	if n.flags.Check(event.DataSendConfirmed) {
		n.flags.Clear(event.DataSendConfirmed)
		n.mu.Lock()
		err := n.sendErr
		n.sendErr = nil
		n.mu.Unlock()
		if err != nil {
			logger.Warn(n.prefix, "send failed: %v", err)
		} else {
			logger.Trace(n.prefix, "send confirmed")
		}
		worked = true
	}

	if n.flags.Check(event.ReconfigSrcIDConfirmed) {
		n.flags.Clear(event.ReconfigSrcIDConfirmed)
		n.mu.Lock()
		err := n.reconfigErr
		n.reconfigErr = nil
		n.mu.Unlock()
		n.applyReconfigure(err)
		worked = true
	}

	for _, f := range []event.Flag{event.ScanComplete, event.ConnectRequest, event.ConnectResponse, event.ConnectionEstablished} {
		if n.flags.Check(f) {
			n.flags.Clear(f)
			logger.Trace(n.prefix, "%s", f)
			worked = true
		}
	}
	return worked
}

func (n *Node) applyReconfigure(err error) {
	if err != nil {
		logger.Warn(n.prefix, "address change failed: %v", err)
		return
	}
	newID := n.link.LocalID()
	if newID == n.id {
		return
	}
	if newID.Role() != n.role {
		logger.Warn(n.prefix, "new address %d belongs to the %s range; role stays %s", newID, newID.Role(), n.role)
	}
	logger.Info(n.prefix, "address changed to %d", newID)
	n.id = newID
	n.prefix = newID.Short()
}

func (n *Node) setState(s State) {
	if s == n.state {
		return
	}
	from := n.state
	n.state = s
	logger.Info(n.prefix, "%s -> %s", from, s)
	n.observer.StateChanged(n.id, from, s)
}

// send encodes and transmits one message; failures are logged only
func (n *Node) send(m msg.Message, dest msg.NodeID) bool {
	payload, err := msg.Encode(m)
	if err != nil {
		logger.Warn(n.prefix, "cannot encode %s: %v", msg.TagName(m.Tag()), err)
		return false
	}
	if err := n.link.Send(payload, dest); err != nil {
		logger.Warn(n.prefix, "send %s to %d failed: %v", msg.TagName(m.Tag()), dest, err)
		return false
	}
	logger.Debug(n.prefix, "sent %s to %d", msg.TagName(m.Tag()), dest)
	return true
}

// queueText splits a line into MaxTextSize pieces and requests a send
func (n *Node) queueText(text string) {
	if text == "" {
		return
	}
	for len(text) > MaxTextSize {
		logger.Warn(n.prefix, "max reached! message forced to be ready: %q", text[:MaxTextSize])
		n.outbox = append(n.outbox, text[:MaxTextSize])
		text = text[MaxTextSize:]
	}
	n.outbox = append(n.outbox, text)
	n.flags.Set(event.DataToSend)
}

// nextText pops one queued line, re-raising DataToSend while more remain
func (n *Node) nextText() (string, bool) {
	if len(n.outbox) == 0 {
		return "", false
	}
	text := n.outbox[0]
	n.outbox = n.outbox[1:]
	if len(n.outbox) > 0 {
		n.flags.Set(event.DataToSend)
	}
	return text, true
}

func (n *Node) printf(format string, args ...interface{}) {
	fmt.Fprintf(n.out, format, args...)
}
