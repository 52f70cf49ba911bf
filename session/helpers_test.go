package session

import (
	"bytes"
	"sync"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/boothmesh/scan"
	"github.com/user/boothmesh/wire"
	"github.com/user/boothmesh/wire/msg"
)

type fakeTimer struct {
	mu     sync.Mutex
	starts int
}

func (f *fakeTimer) Start() {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
}

func (f *fakeTimer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type sentFrame struct {
	dest msg.NodeID
	msg  msg.Message
}

// spyLink records every send and confirms it to the bound receiver
type spyLink struct {
	mu     sync.Mutex
	id     msg.NodeID
	recv   wire.Receiver
	frames []sentFrame
	notify chan sentFrame
}

func newSpyLink(id msg.NodeID) *spyLink {
	return &spyLink{id: id, notify: make(chan sentFrame, 64)}
}

func (s *spyLink) Send(payload []byte, dest msg.NodeID) error {
	m, err := msg.Decode(payload)
	if err != nil {
		return err
	}
	f := sentFrame{dest: dest, msg: m}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	recv := s.recv
	s.mu.Unlock()

	select {
	case s.notify <- f:
	default:
	}
	if recv != nil {
		recv.OnSendConfirm(nil)
	}
	return nil
}

func (s *spyLink) LocalID() msg.NodeID { return s.id }

func (s *spyLink) sent() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.frames...)
}

func (s *spyLink) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

type recordingObserver struct {
	transitions []State
	received    []msg.Tag
	scans       []scan.Selection
	snapshots   []*structpb.Struct
}

func (r *recordingObserver) StateChanged(_ msg.NodeID, _, to State) {
	r.transitions = append(r.transitions, to)
}

func (r *recordingObserver) MessageReceived(_, _ msg.NodeID, m msg.Message) {
	r.received = append(r.received, m.Tag())
}

func (r *recordingObserver) ScanCompleted(_ msg.NodeID, sel scan.Selection, _ []scan.DiscoveredBooth) {
	r.scans = append(r.scans, sel)
}

func (r *recordingObserver) AdmissionChanged(_ msg.NodeID, snap *structpb.Struct) {
	r.snapshots = append(r.snapshots, snap)
}

// standalone builds a node on a spy link
type standalone struct {
	node  *Node
	link  *spyLink
	timer *fakeTimer
	out   *bytes.Buffer
	obs   *recordingObserver
}

func newStandalone(t *testing.T, id msg.NodeID, capacity int) *standalone {
	t.Helper()
	s := &standalone{
		link:  newSpyLink(id),
		timer: &fakeTimer{},
		out:   &bytes.Buffer{},
		obs:   &recordingObserver{},
	}
	node, err := New(Config{ID: id, Capacity: capacity, Link: s.link, Timer: s.timer, Output: s.out, Observer: s.obs})
	if err != nil {
		t.Fatalf("New(%d) failed: %v", id, err)
	}
	s.link.recv = node
	s.node = node
	node.Start()
	return s
}

func (s *standalone) deliver(t *testing.T, m msg.Message, src msg.NodeID, rssi int16) {
	t.Helper()
	payload, err := msg.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.node.OnReceive(payload, src, rssi, 5)
	s.node.Drain()
}

func (s *standalone) input(ev InputEvent) {
	s.node.Input(ev)
	s.node.Drain()
}

// userInUse walks a standalone user through scan, connect and experience with booth 101
func userInUse(t *testing.T, s *standalone) {
	t.Helper()
	s.input(InputEvent{Kind: InputStartScan})
	s.deliver(t, &msg.Beacon{SenderID: 101, SenderRole: msg.RoleBooth}, 101, -45)
	s.node.OnTimerExpired()
	s.node.Drain()
	s.input(Line("y"))
	s.deliver(t, &msg.ConnectionResponse{SrcID: 101, DestID: s.node.ID(), Status: msg.StatusAccept}, 101, -45)
	s.input(Line("y"))
	s.deliver(t, &msg.ExperienceResponse{SrcID: 101, DestID: s.node.ID(), Status: msg.StatusAccept}, 101, -45)
	if s.node.State() != StateInUse {
		t.Fatalf("user state = %s, want InUse", s.node.State())
	}
	s.link.reset()
}

// mesh is a set of nodes sharing one synchronous medium
type mesh struct {
	t      *testing.T
	medium *wire.Medium
	nodes  map[msg.NodeID]*Node
	timers map[msg.NodeID]*fakeTimer
	outs   map[msg.NodeID]*bytes.Buffer
}

func newMesh(t *testing.T) *mesh {
	return &mesh{
		t:      t,
		medium: wire.NewMedium(wire.MediumConfig{}),
		nodes:  make(map[msg.NodeID]*Node),
		timers: make(map[msg.NodeID]*fakeTimer),
		outs:   make(map[msg.NodeID]*bytes.Buffer),
	}
}

func (m *mesh) add(id msg.NodeID, x float64, capacity int) *Node {
	m.t.Helper()
	port, err := m.medium.Attach(id, wire.Position{X: x})
	if err != nil {
		m.t.Fatalf("Attach(%d): %v", id, err)
	}
	timer := &fakeTimer{}
	out := &bytes.Buffer{}
	node, err := New(Config{ID: id, Capacity: capacity, Link: port, Timer: timer, Output: out})
	if err != nil {
		m.t.Fatalf("New(%d): %v", id, err)
	}
	port.Bind(node)
	node.Start()

	m.nodes[id] = node
	m.timers[id] = timer
	m.outs[id] = out
	return node
}

// settle steps every node until the whole mesh is idle
func (m *mesh) settle() {
	for {
		busy := false
		for _, n := range m.nodes {
			if n.Step() {
				busy = true
			}
		}
		if !busy {
			return
		}
	}
}

func (m *mesh) input(id msg.NodeID, ev InputEvent) {
	m.nodes[id].Input(ev)
	m.settle()
}

func (m *mesh) expire(ids ...msg.NodeID) {
	for _, id := range ids {
		m.nodes[id].OnTimerExpired()
	}
	m.settle()
}

// join scans, connects user to the nearest booth and requests the experience
func (m *mesh) join(user msg.NodeID, booths ...msg.NodeID) {
	m.input(user, InputEvent{Kind: InputStartScan})
	m.expire(booths...)
	m.expire(user)
	m.input(user, Line("y"))
	m.input(user, Line("y"))
}
