package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/boothmesh/admission"
	"github.com/user/boothmesh/event"
	"github.com/user/boothmesh/wire/msg"
)

func TestNew_Validation(t *testing.T) {
	link := newSpyLink(1)
	if _, err := New(Config{ID: msg.BroadcastID, Link: link, Timer: &fakeTimer{}}); err == nil {
		t.Errorf("id 255 should be rejected")
	}
	if _, err := New(Config{ID: 1, Timer: &fakeTimer{}}); err == nil {
		t.Errorf("missing link should be rejected")
	}
	if _, err := New(Config{ID: 1, Link: link}); err == nil {
		t.Errorf("missing timer should be rejected")
	}
	if _, err := New(Config{ID: 101, Capacity: 50, Link: link, Timer: &fakeTimer{}}); !errors.Is(err, admission.ErrBadCapacity) {
		t.Errorf("capacity 50 err = %v", err)
	}
}

func TestNew_RoleFromID(t *testing.T) {
	user := newStandalone(t, 7, 0)
	if user.node.Role() != msg.RoleUser || user.node.Scan() == nil || user.node.Admission() != nil {
		t.Errorf("id 7 should be a user with a scan engine")
	}
	if user.timer.count() != 0 {
		t.Errorf("user must idle until asked to scan")
	}

	booth := newStandalone(t, 100, 0)
	if booth.node.Role() != msg.RoleBooth || booth.node.Admission() == nil {
		t.Errorf("id 100 should be a booth with an admission manager")
	}
	if booth.node.Admission().Capacity() != DefaultCapacity {
		t.Errorf("default capacity = %d", booth.node.Admission().Capacity())
	}
	if booth.timer.count() != 1 {
		t.Errorf("booth should start its beacon cycle")
	}
	if booth.node.State() != StateScanning {
		t.Errorf("initial state = %s", booth.node.State())
	}
}

func TestStep_IdleNodeDoesNothing(t *testing.T) {
	s := newStandalone(t, 3, 0)
	if s.node.Step() {
		t.Errorf("Step on an idle node reported work")
	}
}

func TestStep_MessageBeforeSend(t *testing.T) {
	s := newStandalone(t, 3, 0)
	userInUse(t, s)

	s.node.Input(Line("hello"))
	payload, _ := msg.Encode(&msg.Data{Text: []byte("from booth")})
	s.node.OnReceive(payload, 101, -40, 5)

	s.node.Step()
	if got := len(s.link.sent()); got != 0 {
		t.Fatalf("send ran in the same pass as a pending message (%d frames)", got)
	}
	if !strings.Contains(s.out.String(), "RCVD MSG from 101: from booth") {
		t.Errorf("message not surfaced first")
	}

	s.node.Step()
	sent := s.link.sent()
	if len(sent) != 1 || sent[0].msg.Tag() != msg.TagBroadcast {
		t.Errorf("second pass sent %+v, want one broadcast", sent)
	}
}

func TestUnknownTagIsIgnored(t *testing.T) {
	for _, id := range []msg.NodeID{4, 101} {
		s := newStandalone(t, id, 2)
		before := s.node.State()

		s.node.OnReceive([]byte{0x99, 0x01, 0x02}, 9, -50, 3)
		s.node.Drain()

		if s.node.State() != before {
			t.Errorf("node %d changed state on unknown tag", id)
		}
		if got := len(s.link.sent()); got != 0 {
			t.Errorf("node %d replied to unknown tag with %d frames", id, got)
		}
		if len(s.obs.received) != 0 {
			t.Errorf("unknown tag reached observers")
		}
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	s := newStandalone(t, 101, 2)
	s.node.OnReceive([]byte{byte(msg.TagConnectionRequest), 7}, 7, -50, 3)
	s.node.OnReceive(nil, 7, -50, 3)
	s.node.Drain()

	if got := len(s.link.sent()); got != 0 {
		t.Errorf("malformed frame produced %d replies", got)
	}
	if c := s.node.Admission().Counters(); c.CurrentUsers != 0 {
		t.Errorf("malformed request admitted a user")
	}
}

func TestBoothBeaconsOnEveryExpiry(t *testing.T) {
	s := newStandalone(t, 101, 1)

	for i := 0; i < 3; i++ {
		s.node.OnTimerExpired()
		s.node.Drain()
	}
	// beaconing continues once users are connected
	s.deliver(t, &msg.ConnectionRequest{SrcID: 5, DestID: 101}, 5, -60)
	s.node.OnTimerExpired()
	s.node.Drain()

	beacons := 0
	for _, f := range s.link.sent() {
		if b, ok := f.msg.(*msg.Beacon); ok {
			beacons++
			if f.dest != msg.BroadcastID || b.SenderID != 101 || b.SenderRole != msg.RoleBooth {
				t.Errorf("bad beacon %+v to %d", b, f.dest)
			}
		}
	}
	if beacons != 4 {
		t.Errorf("beacons = %d, want 4", beacons)
	}
	if got := s.timer.count(); got != 5 {
		t.Errorf("timer starts = %d, want 5 (start + one per expiry)", got)
	}
}

func TestUserScanSelectsStrongestBooth(t *testing.T) {
	s := newStandalone(t, 1, 0)

	s.input(InputEvent{Kind: InputStartScan})
	if s.timer.count() != 1 {
		t.Fatalf("scan did not start the timer")
	}
	// a beacon carrying the user role is ignored
	s.deliver(t, &msg.Beacon{SenderID: 10, SenderRole: msg.RoleBooth}, 110, -40)
	s.deliver(t, &msg.Beacon{SenderID: 20, SenderRole: msg.RoleBooth}, 120, -70)
	s.deliver(t, &msg.Beacon{SenderID: 30, SenderRole: msg.RoleUser}, 130, -10)

	// second start while scanning is a no-op
	s.input(InputEvent{Kind: InputStartScan})
	if s.timer.count() != 1 {
		t.Errorf("second start restarted the scan")
	}

	s.node.OnTimerExpired()
	s.node.Drain()

	best := s.node.Scan().Best()
	if !best.Found || best.NodeID != 110 || best.RSSI != -40 {
		t.Errorf("best = %+v, want booth 110 at -40", best)
	}
	if len(s.obs.scans) != 1 {
		t.Errorf("scan observer calls = %d", len(s.obs.scans))
	}
	if !strings.Contains(s.out.String(), "Best Booth ID: 110") {
		t.Errorf("output = %q", s.out.String())
	}
}

func TestUserNoBoothFound(t *testing.T) {
	s := newStandalone(t, 1, 0)
	s.input(InputEvent{Kind: InputStartScan})
	s.node.OnTimerExpired()
	s.node.Drain()

	if s.node.Scan().Best().Found {
		t.Errorf("selection should be none")
	}
	s.input(Line("y"))
	if len(s.link.sent()) != 0 {
		t.Errorf("confirm without a booth sent a request")
	}
	s.input(Line("n"))
	if !strings.Contains(s.out.String(), "Scan cancelled") {
		t.Errorf("decline after scan should print cancel notice")
	}
}

func TestUserConnectionRejected(t *testing.T) {
	s := newStandalone(t, 1, 0)
	s.input(InputEvent{Kind: InputStartScan})
	s.deliver(t, &msg.Beacon{SenderID: 101, SenderRole: msg.RoleBooth}, 101, -50)
	s.node.OnTimerExpired()
	s.node.Drain()
	s.input(InputEvent{Kind: InputConfirm})

	sent := s.link.sent()
	req, ok := sent[len(sent)-1].msg.(*msg.ConnectionRequest)
	if !ok || req.SrcID != 1 || req.DestID != 101 || req.Status != msg.StatusRequest {
		t.Fatalf("last frame = %+v, want connection request", sent[len(sent)-1])
	}

	s.deliver(t, &msg.ConnectionResponse{SrcID: 101, DestID: 1, Status: msg.StatusReject}, 101, -50)
	if s.node.State() != StateScanning {
		t.Errorf("state = %s, want Scanning", s.node.State())
	}
	if _, connected := s.node.ConnectedBooth(); connected {
		t.Errorf("user should be unconnected after reject")
	}
}

func TestUserExperienceRejectedStaysConnected(t *testing.T) {
	s := newStandalone(t, 2, 0)
	s.input(InputEvent{Kind: InputStartScan})
	s.deliver(t, &msg.Beacon{SenderID: 101, SenderRole: msg.RoleBooth}, 101, -50)
	s.node.OnTimerExpired()
	s.node.Drain()
	s.input(Line("y"))
	s.deliver(t, &msg.ConnectionResponse{SrcID: 101, DestID: 2, Status: msg.StatusAccept}, 101, -50)
	s.input(Line("y"))
	s.deliver(t, &msg.ExperienceResponse{SrcID: 101, DestID: 2, Status: msg.StatusReject}, 101, -50)

	if s.node.State() != StateConnected {
		t.Fatalf("state = %s, want Connected", s.node.State())
	}

	s.link.reset()
	s.input(Line("just to the booth"))
	sent := s.link.sent()
	if len(sent) != 1 || sent[0].dest != 101 {
		t.Fatalf("sent = %+v", sent)
	}
	if d, ok := sent[0].msg.(*msg.Data); !ok || string(d.Text) != "just to the booth" {
		t.Errorf("frame = %+v, want data", sent[0].msg)
	}
}

func TestUserLongLineIsFlushedInPieces(t *testing.T) {
	s := newStandalone(t, 3, 0)
	userInUse(t, s)

	s.input(Line(strings.Repeat("a", 2*MaxTextSize+50)))

	sent := s.link.sent()
	if len(sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sent))
	}
	for i, want := range []int{MaxTextSize, MaxTextSize, 50} {
		b, ok := sent[i].msg.(*msg.Broadcast)
		if !ok || len(b.Text) != want || b.SrcID != 3 || sent[i].dest != 101 {
			t.Errorf("frame %d = %+v, want %d-byte broadcast to 101", i, sent[i], want)
		}
	}
}

func TestUserLeaveAndQuit(t *testing.T) {
	s := newStandalone(t, 3, 0)
	userInUse(t, s)

	s.input(Line(CommandLeave))
	if s.node.State() != StateConnected {
		t.Fatalf("state after leave = %s", s.node.State())
	}
	sent := s.link.sent()
	if len(sent) != 1 || sent[0].msg.Tag() != msg.TagExperienceExit || sent[0].dest != 101 {
		t.Fatalf("leave sent %+v", sent)
	}

	s.link.reset()
	s.input(Line(CommandQuit))
	if s.node.State() != StateScanning {
		t.Fatalf("state after quit = %s", s.node.State())
	}
	if _, connected := s.node.ConnectedBooth(); connected {
		t.Errorf("quit should clear the connection")
	}
	sent = s.link.sent()
	if len(sent) != 1 || sent[0].msg.Tag() != msg.TagDisconnect {
		t.Errorf("quit sent %+v", sent)
	}
}

func TestUserIgnoresResponsesForOthers(t *testing.T) {
	s := newStandalone(t, 1, 0)
	s.deliver(t, &msg.ConnectionResponse{SrcID: 101, DestID: 2, Status: msg.StatusAccept}, 101, -50)
	if s.node.State() != StateScanning {
		t.Errorf("accepted a response addressed to another user")
	}
}

func TestUserSurfacesAnnouncementInEveryState(t *testing.T) {
	s := newStandalone(t, 1, 0)
	s.deliver(t, &msg.Announcement{SrcID: 101, Text: []byte("one")}, 101, -50)
	userInUse(t, s)
	s.deliver(t, &msg.Announcement{SrcID: 101, Text: []byte("two")}, 101, -50)

	for _, w := range []string{"[ANNOUNCEMENT from Booth 101]: one", "[ANNOUNCEMENT from Booth 101]: two"} {
		if !strings.Contains(s.out.String(), w) {
			t.Errorf("output missing %q", w)
		}
	}
}

func TestReconfigureUpdatesAddress(t *testing.T) {
	s := newStandalone(t, 4, 0)
	s.link.id = 9
	s.node.OnReconfigured(nil)
	s.node.Drain()
	if s.node.ID() != 9 {
		t.Errorf("ID = %d, want 9", s.node.ID())
	}

	s.link.id = 12
	s.node.OnReconfigured(errors.New("address in use"))
	s.node.Drain()
	if s.node.ID() != 9 {
		t.Errorf("failed reconfigure changed ID to %d", s.node.ID())
	}
	if s.node.Flags().Any() {
		t.Errorf("flags left raised: %s", s.node.Flags())
	}
}

func TestInboxOverflowDropsFrames(t *testing.T) {
	s := newStandalone(t, 1, 0)
	payload, _ := msg.Encode(&msg.Data{Text: []byte("x")})
	for i := 0; i < maxInbox+10; i++ {
		s.node.OnReceive(payload, 101, -50, 5)
	}
	steps := 0
	for s.node.Flags().Check(event.MsgReceived) {
		s.node.Step()
		steps++
	}
	if steps != maxInbox {
		t.Errorf("processed %d frames, want %d", steps, maxInbox)
	}
}

func TestRun_ProcessesUntilCancelled(t *testing.T) {
	s := newStandalone(t, 101, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.node.Run(ctx) }()

	s.node.OnTimerExpired()
	select {
	case f := <-s.link.notify:
		if f.msg.Tag() != msg.TagBeacon {
			t.Errorf("first frame = %s, want beacon", msg.TagName(f.msg.Tag()))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no beacon sent by the running loop")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
