package wire

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/wire/debug"
	"github.com/user/boothmesh/wire/msg"
)

// Position places a port on a plane, in meters
type Position struct {
	X, Y float64
}

func (p Position) distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// MediumConfig configures an in-memory medium
type MediumConfig struct {
	// Async delivers each frame on its own goroutine after a simulated delay.
	// When false, Send calls receivers before returning.
	Async bool

	// Range in meters; zero means unlimited
	Range float64

	Simulation *SimulationConfig

	// FrameLogs enables per-node JSONL frame logs
	FrameLogs bool
}

// Medium is a shared single-hop radio channel connecting attached ports
type Medium struct {
	cfg   MediumConfig
	sim   *Simulator
	mu    sync.RWMutex
	ports map[msg.NodeID]*Port
	wg    sync.WaitGroup
}

// NewMedium creates an empty medium
func NewMedium(cfg MediumConfig) *Medium {
	if cfg.Simulation == nil {
		cfg.Simulation = PerfectSimulationConfig()
	}
	return &Medium{
		cfg:   cfg,
		sim:   NewSimulator(cfg.Simulation),
		ports: make(map[msg.NodeID]*Port),
	}
}

// Attach creates a port for id at pos. The receiver is bound later with
// Port.Bind so that a node can be constructed around its port.
func (m *Medium) Attach(id msg.NodeID, pos Position) (*Port, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("attach %d: %w", id, ErrInvalidID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ports[id]; exists {
		return nil, fmt.Errorf("attach %d: %w", id, ErrAddressInUse)
	}

	p := &Port{
		medium: m,
		id:     id,
		pos:    pos,
		frames: debug.NewFrameLogger(id, m.cfg.FrameLogs),
	}
	m.ports[id] = p
	logger.Debug("medium", "attached %s at (%.1f, %.1f)", id.Short(), pos.X, pos.Y)
	return p, nil
}

// Detach removes a port; frames in flight to it are dropped
func (m *Medium) Detach(id msg.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.ports[id]; ok {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		delete(m.ports, id)
	}
}

// Move repositions an attached port
func (m *Medium) Move(id msg.NodeID, pos Position) {
	m.mu.RLock()
	p, ok := m.ports[id]
	m.mu.RUnlock()
	if ok {
		p.mu.Lock()
		p.pos = pos
		p.mu.Unlock()
	}
}

// Wait blocks until every asynchronous delivery has completed
func (m *Medium) Wait() {
	m.wg.Wait()
}

type delivery struct {
	to   *Port
	rssi int16
	snr  int8
}

// transmit resolves the targets of one frame while holding the read lock
func (m *Medium) transmit(from *Port, payload []byte, dest msg.NodeID) []delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fromPos := from.position()
	var out []delivery
	for id, p := range m.ports {
		if p == from {
			continue
		}
		if dest != msg.BroadcastID && id != dest {
			continue
		}
		d := fromPos.distance(p.position())
		if m.cfg.Range > 0 && d > m.cfg.Range {
			continue
		}
		if !m.sim.ShouldPacketSucceed() {
			logger.Trace(from.id.Short(), "frame to %s lost", id.Short())
			continue
		}
		rssi := m.sim.GenerateRSSI(d)
		out = append(out, delivery{to: p, rssi: rssi, snr: m.sim.SNR(rssi)})
	}
	return out
}

// Port is one node's attachment to a Medium. It implements Link.
type Port struct {
	medium *Medium
	frames *debug.FrameLogger

	mu       sync.RWMutex
	id       msg.NodeID
	pos      Position
	receiver Receiver
	closed   bool
}

// Bind sets the receiver for inbound frames and confirmations
func (p *Port) Bind(r Receiver) {
	p.mu.Lock()
	p.receiver = r
	p.mu.Unlock()
}

// LocalID returns the port's current address
func (p *Port) LocalID() msg.NodeID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

func (p *Port) position() Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

func (p *Port) bound() (Receiver, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.receiver, !p.closed
}

// Send transmits payload to dest (or everyone else for msg.BroadcastID) and
// then confirms the send to the bound receiver
func (p *Port) Send(payload []byte, dest msg.NodeID) error {
	if err := checkFrame(payload); err != nil {
		return err
	}
	recv, open := p.bound()
	if !open {
		return ErrClosed
	}

	frame := append([]byte(nil), payload...)
	src := p.LocalID()
	p.frames.LogFrame("tx", dest, frame)

	targets := p.medium.transmit(p, frame, dest)
	for _, t := range targets {
		if p.medium.cfg.Async {
			delay := p.medium.sim.DeliveryDelay()
			p.medium.wg.Add(1)
			go func(t delivery) {
				defer p.medium.wg.Done()
				time.Sleep(delay)
				t.to.deliver(frame, src, t.rssi, t.snr)
			}(t)
		} else {
			t.to.deliver(frame, src, t.rssi, t.snr)
		}
	}

	if recv != nil {
		recv.OnSendConfirm(nil)
	}
	return nil
}

func (p *Port) deliver(frame []byte, src msg.NodeID, rssi int16, snr int8) {
	recv, open := p.bound()
	if !open || recv == nil {
		return
	}
	p.frames.LogFrame("rx", src, frame)
	recv.OnReceive(frame, src, rssi, snr)
}

// Reconfigure changes the port's address and reports completion to the
// receiver if it implements ReconfigureReceiver
func (p *Port) Reconfigure(newID msg.NodeID) error {
	m := p.medium
	err := func() error {
		if !newID.Valid() {
			return fmt.Errorf("reconfigure to %d: %w", newID, ErrInvalidID)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		old := p.LocalID()
		if newID == old {
			return nil
		}
		if _, exists := m.ports[newID]; exists {
			return fmt.Errorf("reconfigure to %d: %w", newID, ErrAddressInUse)
		}
		delete(m.ports, old)
		p.mu.Lock()
		p.id = newID
		p.mu.Unlock()
		m.ports[newID] = p
		return nil
	}()

	if err == nil {
		p.frames.SetNode(newID)
	}
	if recv, _ := p.bound(); recv != nil {
		if rr, ok := recv.(ReconfigureReceiver); ok {
			rr.OnReconfigured(err)
		}
	}
	return err
}
