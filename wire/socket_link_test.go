package wire

import (
	"bytes"
	"os"
	"testing"

	"github.com/user/boothmesh/wire/msg"
)

func startSocket(t *testing.T, dir string, id msg.NodeID) (*SocketLink, *recorder) {
	t.Helper()
	l := NewSocketLink(id, SocketConfig{Dir: dir, Simulation: PerfectSimulationConfig()})
	r := newRecorder()
	if err := l.Start(r); err != nil {
		t.Fatalf("Start(%d) failed: %v", id, err)
	}
	t.Cleanup(l.Stop)
	return l, r
}

func TestSocketLink_UnicastAndBroadcast(t *testing.T) {
	dir := t.TempDir()
	booth, boothRx := startSocket(t, dir, 101)
	_, u1 := startSocket(t, dir, 1)
	_, u2 := startSocket(t, dir, 2)

	beacon := []byte{0x10, 101, 1, 0}
	if err := booth.Send(beacon, msg.BroadcastID); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	for _, r := range []*recorder{u1, u2} {
		f := r.waitFrames(t, 1)
		if f[0].src != 101 || !bytes.Equal(f[0].payload, beacon) {
			t.Errorf("broadcast frame = %+v", f[0])
		}
	}

	resp := []byte{0x12, 101, 2, 1}
	booth.Send(resp, 2)
	f := u2.waitFrames(t, 2)
	if !bytes.Equal(f[1].payload, resp) {
		t.Errorf("unicast payload = %x", f[1].payload)
	}
	if got := len(u1.received()); got != 1 {
		t.Errorf("bystander got %d frames, want 1", got)
	}
	if len(boothRx.received()) != 0 {
		t.Errorf("sender received its own broadcast")
	}
}

func TestSocketLink_SendToMissingPeerIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	l, r := startSocket(t, dir, 5)

	if err := l.Send([]byte{0x20, 'x'}, 42); err != nil {
		t.Errorf("send to absent peer err = %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.confirms != 1 {
		t.Errorf("confirms = %d, want 1", r.confirms)
	}
}

func TestSocketLink_Reconfigure(t *testing.T) {
	dir := t.TempDir()
	l, r := startSocket(t, dir, 5)
	_, peer := startSocket(t, dir, 6)

	if err := l.Reconfigure(7); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if _, err := os.Stat(SocketPath(dir, 5)); !os.IsNotExist(err) {
		t.Errorf("old socket still present: %v", err)
	}
	if _, err := os.Stat(SocketPath(dir, 7)); err != nil {
		t.Errorf("new socket missing: %v", err)
	}

	l.Send([]byte{0x20, 'q'}, 6)
	f := peer.waitFrames(t, 1)
	if f[0].src != 7 {
		t.Errorf("src after reconfigure = %d, want 7", f[0].src)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reconfigs) != 1 || r.reconfigs[0] != nil {
		t.Errorf("reconfigure callbacks = %v", r.reconfigs)
	}
}
