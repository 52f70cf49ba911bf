// Package timer provides the restartable countdown used for scan timeouts
// and the Booth beacon cycle.
package timer

import (
	"sync"
	"time"
)

// Countdown fires onExpire once per Start, after the configured duration.
// Start while running restarts the countdown; the earlier expiry is dropped.
type Countdown struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
	gen      uint64
	running  bool
	onExpire func()
}

// NewCountdown creates a stopped countdown
func NewCountdown(d time.Duration, onExpire func()) *Countdown {
	return &Countdown{duration: d, onExpire: onExpire}
}

// Start (re)arms the countdown
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.running = true
	c.timer = time.AfterFunc(c.duration, func() { c.fire(gen) })
}

// Stop disarms the countdown without firing
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	c.running = false
}

// Running reports whether an expiry is pending
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.running = false
	cb := c.onExpire
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}
