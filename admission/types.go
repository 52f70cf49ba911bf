// Package admission tracks the users of a Booth: who is connected, who holds
// one of the limited in-use slots, who is queued for one, and everyone who
// has ever used the booth.
package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/boothmesh/wire/msg"
)

// Bounds of the booth-side collections
const (
	MaxConnected  = 20
	MaxWaiting    = 10
	MaxRegistered = 50
)

// Status of a user record
type Status uint8

const (
	StatusConnected Status = iota
	StatusInUse
	StatusWaiting
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusInUse:
		return "in-use"
	case StatusWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

var (
	ErrAlreadyPresent  = errors.New("user already connected or waiting")
	ErrConnectionsFull = errors.New("no free connection slot")
	ErrWaitingFull     = errors.New("waiting queue full")
	ErrUnknownUser     = errors.New("user not found")
	ErrNotConnected    = errors.New("user is not in connected status")
	ErrNotWaiting      = errors.New("user is not waiting")
	ErrNotInUse        = errors.New("user is not in use")
	ErrBadCapacity     = errors.New("capacity must be between 1 and 20")
)

// UserRecord is the booth's view of one user
type UserRecord struct {
	UserID        msg.NodeID    `json:"user_id"`
	Status        Status        `json:"status"`
	RSSI          int16         `json:"rssi"`
	SNR           int8          `json:"snr"`
	ConnectTime   time.Time     `json:"connect_time"`
	UseStartTime  time.Time     `json:"use_start_time"`
	TotalUseTime  time.Duration `json:"total_use_time"`
	WaitingNumber uint32        `json:"waiting_number"`
	IsRegistered  bool          `json:"is_registered"`
	SessionID     string        `json:"session_id"`
}

// Counters mirrors the booth information block
type Counters struct {
	BoothID           msg.NodeID `json:"booth_id"`
	Capacity          int        `json:"capacity"`
	CurrentUsers      int        `json:"current_users"`
	ActiveUsers       int        `json:"active_users"`
	WaitingUsers      int        `json:"waiting_users"`
	RegisteredUsers   int        `json:"registered_users"`
	NextWaitingNumber uint32     `json:"next_waiting_number"`
}

// Stats aggregates usage over the registered history
type Stats struct {
	Utilization     float64       `json:"utilization"`
	TotalUseTime    time.Duration `json:"total_use_time"`
	AverageUseTime  time.Duration `json:"average_use_time"`
	RegisteredUsers int           `json:"registered_users"`
}
