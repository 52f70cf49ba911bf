package admission

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Counters returns the current booth counters
func (m *Manager) Counters() Counters {
	return Counters{
		BoothID:           m.boothID,
		Capacity:          m.capacity,
		CurrentUsers:      len(m.connected),
		ActiveUsers:       m.activeUsers(),
		WaitingUsers:      len(m.waiting),
		RegisteredUsers:   len(m.registered),
		NextWaitingNumber: m.nextWaitingNumber,
	}
}

// Connected returns copies of every record in the connected set (Connected and InUse)
func (m *Manager) Connected() []UserRecord {
	return copyRecords(m.connected, func(*UserRecord) bool { return true })
}

// InUse returns copies of the in-use subset of the connected set
func (m *Manager) InUse() []UserRecord {
	return copyRecords(m.connected, func(r *UserRecord) bool { return r.Status == StatusInUse })
}

// Waiting returns copies of the queue, lowest ticket first
func (m *Manager) Waiting() []UserRecord {
	return copyRecords(m.waiting, func(*UserRecord) bool { return true })
}

// Registered returns copies of the registered history
func (m *Manager) Registered() []UserRecord {
	return copyRecords(m.registered, func(*UserRecord) bool { return true })
}

// Stats computes utilization and average use time
func (m *Manager) Stats() Stats {
	var total time.Duration
	for _, rec := range m.registered {
		total += rec.TotalUseTime
	}

	s := Stats{
		Utilization:     float64(m.activeUsers()) / float64(m.capacity),
		TotalUseTime:    total,
		RegisteredUsers: len(m.registered),
	}
	if len(m.registered) > 0 {
		s.AverageUseTime = total / time.Duration(len(m.registered))
	}
	return s
}

// Snapshot renders counters, stats and member ids as a protobuf Struct
func (m *Manager) Snapshot() (*structpb.Struct, error) {
	c := m.Counters()
	s := m.Stats()

	ids := func(recs []*UserRecord, keep func(*UserRecord) bool) []interface{} {
		out := []interface{}{}
		for _, r := range recs {
			if keep(r) {
				out = append(out, int(r.UserID))
			}
		}
		return out
	}
	all := func(*UserRecord) bool { return true }

	return structpb.NewStruct(map[string]interface{}{
		"booth_id":            int(c.BoothID),
		"capacity":            c.Capacity,
		"current_users":       c.CurrentUsers,
		"active_users":        c.ActiveUsers,
		"waiting_users":       c.WaitingUsers,
		"registered_users":    c.RegisteredUsers,
		"next_waiting_number": int(c.NextWaitingNumber),
		"utilization":         s.Utilization,
		"average_use_seconds": s.AverageUseTime.Seconds(),
		"total_use_seconds":   s.TotalUseTime.Seconds(),
		"connected":           ids(m.connected, all),
		"in_use":              ids(m.connected, func(r *UserRecord) bool { return r.Status == StatusInUse }),
		"waiting":             ids(m.waiting, all),
	})
}

// checkInvariants verifies the global booth invariants
func (m *Manager) checkInvariants() error {
	if a := m.activeUsers(); a > m.capacity {
		return fmt.Errorf("active users %d exceed capacity %d", a, m.capacity)
	}
	if len(m.connected) > MaxConnected {
		return fmt.Errorf("connected set holds %d > %d", len(m.connected), MaxConnected)
	}
	if len(m.waiting) > MaxWaiting {
		return fmt.Errorf("waiting queue holds %d > %d", len(m.waiting), MaxWaiting)
	}
	for _, rec := range m.connected {
		if m.indexWaiting(rec.UserID) >= 0 {
			return fmt.Errorf("user %d both connected and waiting", rec.UserID)
		}
		if rec.Status == StatusWaiting {
			return fmt.Errorf("user %d in connected set with waiting status", rec.UserID)
		}
	}
	for i := 1; i < len(m.waiting); i++ {
		if m.waiting[i-1].WaitingNumber >= m.waiting[i].WaitingNumber {
			return fmt.Errorf("waiting queue out of ticket order at %d", i)
		}
	}
	return nil
}

func copyRecords(recs []*UserRecord, keep func(*UserRecord) bool) []UserRecord {
	out := make([]UserRecord, 0, len(recs))
	for _, r := range recs {
		if keep(r) {
			out = append(out, *r)
		}
	}
	return out
}
