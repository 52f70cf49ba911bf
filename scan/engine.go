// Package scan discovers Booth nodes by listening for beacons during a timed
// window and picks the one with the strongest signal.
package scan

import (
	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/wire/msg"
)

// MaxBooths bounds the discovered-booth table
const MaxBooths = 10

// Timer is the countdown that ends a scan window
type Timer interface {
	Start()
}

// DiscoveredBooth is one beacon source seen during the current scan
type DiscoveredBooth struct {
	NodeID msg.NodeID `json:"node_id"`
	RSSI   int16      `json:"rssi"`
	SNR    int8       `json:"snr"`
	Active bool       `json:"active"`
}

// Selection is the outcome of a scan; Found is false when no booth answered
type Selection struct {
	NodeID msg.NodeID `json:"node_id"`
	RSSI   int16      `json:"rssi"`
	Found  bool       `json:"found"`
}

// Engine is owned by the dispatch loop and is not safe for concurrent use
type Engine struct {
	prefix     string
	timer      Timer
	booths     []DiscoveredBooth
	best       Selection
	inProgress bool
	completed  bool
}

// NewEngine creates an idle engine for the given User node
func NewEngine(self msg.NodeID, timer Timer) *Engine {
	return &Engine{
		prefix: self.Short(),
		timer:  timer,
		booths: make([]DiscoveredBooth, 0, MaxBooths),
	}
}

// StartScan opens a new scan window. It returns false, changing nothing,
// when a scan is already in progress.
func (e *Engine) StartScan() bool {
	if e.inProgress {
		logger.Debug(e.prefix, "scan already in progress, ignoring start")
		return false
	}

	e.booths = e.booths[:0]
	e.best = Selection{}
	e.completed = false
	e.inProgress = true
	e.timer.Start()

	logger.Info(e.prefix, "Scanning for booth nodes...")
	return true
}

// OnBeacon records a beacon. Beacons outside a scan window or from
// User-range ids are ignored; beyond MaxBooths new entries are dropped.
func (e *Engine) OnBeacon(nodeID msg.NodeID, rssi int16, snr int8) bool {
	if !e.inProgress || !nodeID.IsBooth() {
		return false
	}

	for i := range e.booths {
		if e.booths[i].NodeID == nodeID {
			e.booths[i].RSSI = rssi
			e.booths[i].SNR = snr
			e.booths[i].Active = true
			return true
		}
	}

	if len(e.booths) >= MaxBooths {
		logger.Trace(e.prefix, "booth table full, dropping beacon from %d", nodeID)
		return false
	}

	e.booths = append(e.booths, DiscoveredBooth{NodeID: nodeID, RSSI: rssi, SNR: snr, Active: true})
	logger.Debug(e.prefix, "booth beacon received from ID %d, RSSI: %d", nodeID, rssi)
	return true
}

// OnTimerElapsed closes the scan window and computes the best booth.
// It is the only way a scan ends; nothing reschedules it.
func (e *Engine) OnTimerElapsed() Selection {
	if !e.inProgress {
		return e.best
	}

	best := Selection{}
	for _, b := range e.booths {
		if !b.Active {
			continue
		}
		// strict comparison keeps the first entry on ties
		if !best.Found || b.RSSI > best.RSSI {
			best = Selection{NodeID: b.NodeID, RSSI: b.RSSI, Found: true}
		}
	}

	e.best = best
	e.completed = true
	e.inProgress = false

	if best.Found {
		logger.Info(e.prefix, "scan complete: best booth %d (%d dBm) of %d found", best.NodeID, best.RSSI, len(e.booths))
	} else {
		logger.Info(e.prefix, "scan complete: no booth found")
	}
	return best
}

// InProgress reports whether a scan window is open
func (e *Engine) InProgress() bool { return e.inProgress }

// Completed reports whether the last scan window has closed
func (e *Engine) Completed() bool { return e.completed }

// Best returns the selection of the last completed scan
func (e *Engine) Best() Selection { return e.best }

// Booths returns a copy of the discovered-booth table
func (e *Engine) Booths() []DiscoveredBooth {
	out := make([]DiscoveredBooth, len(e.booths))
	copy(out, e.booths)
	return out
}
