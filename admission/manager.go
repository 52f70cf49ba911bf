package admission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/wire/msg"
)

// Manager owns the Connected/InUse/Waiting/Registered sets of one Booth.
// It is driven from the dispatch loop only and is not safe for concurrent use.
type Manager struct {
	prefix   string
	boothID  msg.NodeID
	capacity int
	now      func() time.Time

	connected  []*UserRecord // Connected and InUse records
	waiting    []*UserRecord // ascending WaitingNumber
	registered []*UserRecord // append-only, independent copies

	nextWaitingNumber uint32
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager allowing capacity simultaneous in-use users
func New(boothID msg.NodeID, capacity int, opts ...Option) (*Manager, error) {
	if capacity < 1 || capacity > MaxConnected {
		return nil, fmt.Errorf("admission: %w (got %d)", ErrBadCapacity, capacity)
	}

	m := &Manager{
		prefix:            boothID.Short(),
		boothID:           boothID,
		capacity:          capacity,
		now:               time.Now,
		connected:         make([]*UserRecord, 0, MaxConnected),
		waiting:           make([]*UserRecord, 0, MaxWaiting),
		registered:        make([]*UserRecord, 0, MaxRegistered),
		nextWaitingNumber: 1,
	}
	for _, opt := range opts {
		opt(m)
	}

	logger.Info(m.prefix, "booth manager initialized (capacity %d)", capacity)
	return m, nil
}

// AddUser admits a user into the connected set with status Connected.
// There is no waiting-queue fallback at the connection level.
func (m *Manager) AddUser(userID msg.NodeID, rssi int16, snr int8) error {
	if m.indexConnected(userID) >= 0 || m.indexWaiting(userID) >= 0 {
		logger.Warn(m.prefix, "user %d already present, ignoring add", userID)
		return fmt.Errorf("add user %d: %w", userID, ErrAlreadyPresent)
	}
	if len(m.connected) >= MaxConnected {
		logger.Warn(m.prefix, "cannot add user %d - all %d connection slots taken", userID, MaxConnected)
		return fmt.Errorf("add user %d: %w", userID, ErrConnectionsFull)
	}

	rec := &UserRecord{
		UserID:       userID,
		Status:       StatusConnected,
		RSSI:         rssi,
		SNR:          snr,
		ConnectTime:  m.now(),
		IsRegistered: m.indexRegistered(userID) >= 0,
		SessionID:    uuid.NewString(),
	}
	m.connected = append(m.connected, rec)

	logger.Info(m.prefix, "user %d connected (RSSI: %d, SNR: %d, session %s)", userID, rssi, snr, rec.SessionID[:8])
	logger.Debug(m.prefix, "board connected: %d", len(m.connected))
	return nil
}

// RemoveUser drops a user from whichever set holds it. Removing an in-use
// user frees its slot but does not promote anyone.
func (m *Manager) RemoveUser(userID msg.NodeID) error {
	if i := m.indexConnected(userID); i >= 0 {
		rec := m.connected[i]
		if rec.Status == StatusInUse {
			m.accumulateUse(rec)
		}
		m.connected = append(m.connected[:i], m.connected[i+1:]...)
		logger.Info(m.prefix, "user %d disconnected (was %s)", userID, rec.Status)
		return nil
	}

	if i := m.indexWaiting(userID); i >= 0 {
		m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
		logger.Info(m.prefix, "user %d removed from waiting queue", userID)
		return nil
	}

	logger.Warn(m.prefix, "remove: user %d not found", userID)
	return fmt.Errorf("remove user %d: %w", userID, ErrUnknownUser)
}

// MoveToInUse grants an in-use slot to a Connected user. At capacity the
// user is queued instead and StatusWaiting is returned.
func (m *Manager) MoveToInUse(userID msg.NodeID) (Status, error) {
	i := m.indexConnected(userID)
	if i < 0 || m.connected[i].Status != StatusConnected {
		logger.Warn(m.prefix, "move to in-use: user %d is not connected", userID)
		return 0, fmt.Errorf("move user %d to in-use: %w", userID, ErrNotConnected)
	}

	if m.activeUsers() >= m.capacity {
		logger.Info(m.prefix, "booth full (%d/%d), queueing user %d", m.activeUsers(), m.capacity, userID)
		if err := m.MoveToWaiting(userID); err != nil {
			return StatusConnected, err
		}
		return StatusWaiting, nil
	}

	rec := m.connected[i]
	rec.Status = StatusInUse
	rec.UseStartTime = m.now()

	if m.indexRegistered(userID) < 0 {
		if len(m.registered) < MaxRegistered {
			rec.IsRegistered = true
			hist := *rec
			m.registered = append(m.registered, &hist)
			logger.Info(m.prefix, "user %d registered (%d total)", userID, len(m.registered))
		} else {
			logger.Warn(m.prefix, "registered history full, user %d not recorded", userID)
		}
	}

	logger.Info(m.prefix, "user %d in use (%d/%d)", userID, m.activeUsers(), m.capacity)
	return StatusInUse, nil
}

// MoveToWaiting moves a Connected user into the FIFO queue with a fresh ticket
func (m *Manager) MoveToWaiting(userID msg.NodeID) error {
	i := m.indexConnected(userID)
	if i < 0 || m.connected[i].Status != StatusConnected {
		logger.Warn(m.prefix, "move to waiting: user %d is not connected", userID)
		return fmt.Errorf("move user %d to waiting: %w", userID, ErrNotConnected)
	}
	if len(m.waiting) >= MaxWaiting {
		logger.Warn(m.prefix, "waiting queue full, user %d stays connected", userID)
		return fmt.Errorf("move user %d to waiting: %w", userID, ErrWaitingFull)
	}

	rec := m.connected[i]
	m.connected = append(m.connected[:i], m.connected[i+1:]...)

	rec.Status = StatusWaiting
	rec.WaitingNumber = m.nextWaitingNumber
	m.nextWaitingNumber++
	m.waiting = append(m.waiting, rec)

	logger.Info(m.prefix, "user %d added to waiting queue (ticket #%d, %d waiting)", userID, rec.WaitingNumber, len(m.waiting))
	return nil
}

// MoveWaitingToConnected returns a queued user to the connected set.
// The ticket is discarded.
func (m *Manager) MoveWaitingToConnected(userID msg.NodeID) error {
	i := m.indexWaiting(userID)
	if i < 0 {
		logger.Warn(m.prefix, "user %d is not waiting", userID)
		return fmt.Errorf("move user %d to connected: %w", userID, ErrNotWaiting)
	}
	if len(m.connected) >= MaxConnected {
		logger.Warn(m.prefix, "no connection slot for waiting user %d", userID)
		return fmt.Errorf("move user %d to connected: %w", userID, ErrConnectionsFull)
	}

	rec := m.waiting[i]
	m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)

	rec.Status = StatusConnected
	rec.WaitingNumber = 0
	rec.ConnectTime = m.now()
	m.connected = append(m.connected, rec)

	logger.Info(m.prefix, "user %d moved from waiting to connected", userID)
	return nil
}

// ExitFromInUse ends a user's session, credits the elapsed time, and
// promotes the head of the waiting queue into the freed slot. At most one
// user is promoted per exit.
func (m *Manager) ExitFromInUse(userID msg.NodeID) (promoted msg.NodeID, ok bool, err error) {
	i := m.indexConnected(userID)
	if i < 0 || m.connected[i].Status != StatusInUse {
		logger.Warn(m.prefix, "exit: user %d is not in use", userID)
		return 0, false, fmt.Errorf("exit user %d: %w", userID, ErrNotInUse)
	}

	rec := m.connected[i]
	elapsed := m.accumulateUse(rec)
	rec.Status = StatusConnected
	rec.UseStartTime = time.Time{}
	logger.Info(m.prefix, "user %d left the experience after %s (%d/%d)", userID, elapsed.Round(time.Millisecond), m.activeUsers(), m.capacity)

	if len(m.waiting) == 0 {
		return 0, false, nil
	}

	head := m.waiting[0].UserID
	if err := m.MoveWaitingToConnected(head); err != nil {
		return 0, false, nil
	}
	status, err := m.MoveToInUse(head)
	if err != nil || status != StatusInUse {
		return 0, false, nil
	}

	logger.Info(m.prefix, "user %d promoted from waiting queue", head)
	return head, true, nil
}

// FindUser looks a user up in the connected set, then the waiting queue
func (m *Manager) FindUser(userID msg.NodeID) (UserRecord, bool) {
	if i := m.indexConnected(userID); i >= 0 {
		return *m.connected[i], true
	}
	if i := m.indexWaiting(userID); i >= 0 {
		return *m.waiting[i], true
	}
	return UserRecord{}, false
}

// CanConnect reports whether a connection slot is free
func (m *Manager) CanConnect() bool {
	return len(m.connected) < MaxConnected
}

// Capacity returns the in-use limit
func (m *Manager) Capacity() int { return m.capacity }

// accumulateUse credits now-UseStartTime to the live record and its history entry
func (m *Manager) accumulateUse(rec *UserRecord) time.Duration {
	if rec.UseStartTime.IsZero() {
		return 0
	}
	elapsed := m.now().Sub(rec.UseStartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	rec.TotalUseTime += elapsed
	if j := m.indexRegistered(rec.UserID); j >= 0 {
		m.registered[j].TotalUseTime += elapsed
	}
	return elapsed
}

func (m *Manager) activeUsers() int {
	n := 0
	for _, rec := range m.connected {
		if rec.Status == StatusInUse {
			n++
		}
	}
	return n
}

func (m *Manager) indexConnected(userID msg.NodeID) int {
	for i, rec := range m.connected {
		if rec.UserID == userID {
			return i
		}
	}
	return -1
}

func (m *Manager) indexWaiting(userID msg.NodeID) int {
	for i, rec := range m.waiting {
		if rec.UserID == userID {
			return i
		}
	}
	return -1
}

func (m *Manager) indexRegistered(userID msg.NodeID) int {
	for i, rec := range m.registered {
		if rec.UserID == userID {
			return i
		}
	}
	return -1
}
