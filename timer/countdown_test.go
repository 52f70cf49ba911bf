package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdown_FiresOnce(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{}, 1)
	c := NewCountdown(10*time.Millisecond, func() {
		fired.Add(1)
		done <- struct{}{}
	})

	c.Start()
	if !c.Running() {
		t.Fatalf("countdown should be running after Start")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("countdown never fired")
	}

	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
	if c.Running() {
		t.Errorf("countdown should not be running after expiry")
	}
}

func TestCountdown_RestartDropsEarlierExpiry(t *testing.T) {
	var fired atomic.Int32
	c := NewCountdown(40*time.Millisecond, func() { fired.Add(1) })

	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Start()
	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("fired %d times after restart, want 1", got)
	}
}

func TestCountdown_Stop(t *testing.T) {
	var fired atomic.Int32
	c := NewCountdown(10*time.Millisecond, func() { fired.Add(1) })

	c.Start()
	c.Stop()
	time.Sleep(40 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("stopped countdown fired %d times", got)
	}
	if c.Running() {
		t.Errorf("stopped countdown reports running")
	}
}
