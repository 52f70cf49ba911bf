package wire

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/util"
	"github.com/user/boothmesh/wire/debug"
	"github.com/user/boothmesh/wire/msg"
)

const socketPrefix = "boothmesh-"

// SocketConfig configures a SocketLink
type SocketConfig struct {
	// Dir holds one socket per node; defaults to util.GetSocketDir()
	Dir string

	// Distance in meters used to simulate RSSI of received frames
	Distance float64

	Simulation *SimulationConfig
	FrameLogs  bool
}

// SocketLink implements Link over unix datagram sockets, one per node at
// {dir}/boothmesh-<id>.sock. Each datagram is [srcId][payload]. A broadcast
// is sent to every peer socket found in dir.
type SocketLink struct {
	cfg    SocketConfig
	sim    *Simulator
	frames *debug.FrameLogger

	mu       sync.RWMutex
	id       msg.NodeID
	conn     *net.UnixConn
	receiver Receiver
	stopped  bool

	wg sync.WaitGroup
}

// NewSocketLink creates an unbound link for id
func NewSocketLink(id msg.NodeID, cfg SocketConfig) *SocketLink {
	if cfg.Dir == "" {
		cfg.Dir = util.GetSocketDir()
	}
	if cfg.Distance <= 0 {
		cfg.Distance = 1
	}
	return &SocketLink{
		cfg:    cfg,
		sim:    NewSimulator(cfg.Simulation),
		frames: debug.NewFrameLogger(id, cfg.FrameLogs),
		id:     id,
	}
}

// SocketPath returns the socket file for id inside dir
func SocketPath(dir string, id msg.NodeID) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.sock", socketPrefix, id))
}

// Start binds the node's socket and begins delivering frames to r
func (l *SocketLink) Start(r Receiver) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.id.Valid() {
		return fmt.Errorf("start %d: %w", l.id, ErrInvalidID)
	}
	conn, err := l.bind(l.id)
	if err != nil {
		return err
	}
	l.conn = conn
	l.receiver = r
	l.stopped = false

	l.wg.Add(1)
	go l.readLoop(conn)

	logger.Debug(l.id.Short(), "socket bound at %s", SocketPath(l.cfg.Dir, l.id))
	return nil
}

// Stop closes the socket and waits for the read loop (idempotent)
func (l *SocketLink) Stop() {
	l.mu.Lock()
	if l.stopped || l.conn == nil {
		l.stopped = true
		l.mu.Unlock()
		return
	}
	l.stopped = true
	conn := l.conn
	path := SocketPath(l.cfg.Dir, l.id)
	l.mu.Unlock()

	conn.Close()
	os.Remove(path)
	l.wg.Wait()
}

// LocalID returns the bound address
func (l *SocketLink) LocalID() msg.NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

// Send writes payload to dest's socket, or to every peer for msg.BroadcastID,
// then confirms to the receiver. Unreachable peers are not an error.
func (l *SocketLink) Send(payload []byte, dest msg.NodeID) error {
	if err := checkFrame(payload); err != nil {
		return err
	}

	l.mu.RLock()
	conn, src, recv, stopped := l.conn, l.id, l.receiver, l.stopped
	l.mu.RUnlock()
	if conn == nil || stopped {
		return ErrClosed
	}

	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(src))
	frame = append(frame, payload...)
	l.frames.LogFrame("tx", dest, payload)

	var targets []msg.NodeID
	if dest == msg.BroadcastID {
		peers, err := l.peers()
		if err != nil {
			if recv != nil {
				recv.OnSendConfirm(err)
			}
			return err
		}
		targets = peers
	} else {
		targets = []msg.NodeID{dest}
	}

	for _, id := range targets {
		if id == src {
			continue
		}
		addr := &net.UnixAddr{Name: SocketPath(l.cfg.Dir, id), Net: "unixgram"}
		if _, err := conn.WriteToUnix(frame, addr); err != nil {
			logger.Trace(src.Short(), "frame to %s not delivered: %v", id.Short(), err)
		}
	}

	if recv != nil {
		recv.OnSendConfirm(nil)
	}
	return nil
}

// Reconfigure rebinds the link under newID and reports completion to the
// receiver if it implements ReconfigureReceiver
func (l *SocketLink) Reconfigure(newID msg.NodeID) error {
	err := l.rebind(newID)
	if err == nil {
		l.frames.SetNode(newID)
		logger.Info(newID.Short(), "link address changed to %d", newID)
	}

	l.mu.RLock()
	recv := l.receiver
	l.mu.RUnlock()
	if rr, ok := recv.(ReconfigureReceiver); ok {
		rr.OnReconfigured(err)
	}
	return err
}

func (l *SocketLink) rebind(newID msg.NodeID) error {
	if !newID.Valid() {
		return fmt.Errorf("reconfigure to %d: %w", newID, ErrInvalidID)
	}

	l.mu.Lock()
	if l.stopped || l.conn == nil {
		l.mu.Unlock()
		return ErrClosed
	}
	if newID == l.id {
		l.mu.Unlock()
		return nil
	}
	conn, err := l.bind(newID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	old, oldPath := l.conn, SocketPath(l.cfg.Dir, l.id)
	l.conn = conn
	l.id = newID
	l.wg.Add(1)
	go l.readLoop(conn)
	l.mu.Unlock()

	old.Close()
	os.Remove(oldPath)
	return nil
}

// bind must be called with l.mu held
func (l *SocketLink) bind(id msg.NodeID) (*net.UnixConn, error) {
	path := SocketPath(l.cfg.Dir, id)
	if _, err := os.Stat(path); err == nil {
		// a live peer answers a probe; a stale file from a crashed run does not
		probe, derr := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
		if derr == nil {
			probe.Close()
			return nil, fmt.Errorf("bind %s: %w", path, ErrAddressInUse)
		}
		os.Remove(path)
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	return conn, nil
}

// peers lists node ids with a socket in the shared directory
func (l *SocketLink) peers() ([]msg.NodeID, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	var ids []msg.NodeID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, socketPrefix) || !strings.HasSuffix(name, ".sock") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, socketPrefix), ".sock"))
		if err != nil || n < 0 || n >= int(msg.BroadcastID) {
			continue
		}
		ids = append(ids, msg.NodeID(n))
	}
	return ids, nil
}

// readLoop delivers datagrams from conn until it is closed
// Note: Must be called with wg.Add(1) already done by caller
func (l *SocketLink) readLoop(conn *net.UnixConn) {
	defer l.wg.Done()

	buf := make([]byte, MaxFrameSize+1)
	for {
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Warn(l.LocalID().Short(), "socket read failed: %v", err)
			}
			return
		}
		if n < 2 {
			logger.Trace(l.LocalID().Short(), "dropping runt datagram (%d bytes)", n)
			continue
		}

		if !l.sim.ShouldPacketSucceed() {
			logger.Trace(l.LocalID().Short(), "frame from %d lost", buf[0])
			continue
		}

		src := msg.NodeID(buf[0])
		payload := append([]byte(nil), buf[1:n]...)
		l.frames.LogFrame("rx", src, payload)

		l.mu.RLock()
		recv := l.receiver
		l.mu.RUnlock()
		if recv == nil {
			continue
		}

		rssi := l.sim.GenerateRSSI(l.cfg.Distance)
		recv.OnReceive(payload, src, rssi, l.sim.SNR(rssi))
	}
}
