// Package monitor publishes node activity to HTTP and websocket observers.
package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventType classifies a node event for websocket clients
type EventType string

const (
	EventState     EventType = "state"
	EventAdmission EventType = "admission"
	EventMessage   EventType = "message"
	EventScan      EventType = "scan"
)

// Event is the JSON envelope sent to websocket clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Node      int         `json:"node"`
	Data      interface{} `json:"data"`
}

type subscriber struct {
	id string
	ch chan Event
}

// Bus fans events out to subscribers and remembers the latest admission
// snapshot of every booth
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	snapMu    sync.RWMutex
	snapshots map[int]*structpb.Struct
}

// NewBus constructs a ready Bus
func NewBus() *Bus {
	return &Bus{
		subs:      make(map[*subscriber]struct{}),
		snapshots: make(map[int]*structpb.Struct),
	}
}

// Subscribe registers a client. The returned function unsubscribes and
// closes the channel.
func (b *Bus) Subscribe() (string, <-chan Event, func()) {
	s := &subscriber{id: uuid.NewString(), ch: make(chan Event, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.id, s.ch, unsub
}

// Publish sends e to every subscriber. Slow consumers are skipped so the
// dispatch loop never stalls.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Len returns the current subscriber count
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) storeSnapshot(node int, snap *structpb.Struct) {
	b.snapMu.Lock()
	b.snapshots[node] = snap
	b.snapMu.Unlock()
}

// Snapshots returns the latest admission snapshot per booth
func (b *Bus) Snapshots() map[int]*structpb.Struct {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	out := make(map[int]*structpb.Struct, len(b.snapshots))
	for k, v := range b.snapshots {
		out[k] = v
	}
	return out
}
