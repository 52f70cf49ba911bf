// Package admin implements the Booth operator console: single-letter
// commands that inspect the admission sets or announce to connected users.
package admin

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/user/boothmesh/admission"
	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/wire/msg"
)

// MaxAnnouncementSize bounds an announcement, terminator included
const MaxAnnouncementSize = 100

// Usage is printed for any unrecognized command
const Usage = "[ADMIN] Unknown command. Available commands: b <message>, i, c, a, w, r, s"

var ErrUnknownCommand = errors.New("unknown admin command")

// Sender is the part of the link the console needs
type Sender interface {
	Send(payload []byte, dest msg.NodeID) error
	LocalID() msg.NodeID
}

// Console executes operator commands against a booth's admission manager
type Console struct {
	manager *admission.Manager
	sender  Sender
	out     io.Writer
	now     func() time.Time
	prefix  string
}

// NewConsole creates a console writing its reports to out
func NewConsole(manager *admission.Manager, sender Sender, out io.Writer) *Console {
	return &Console{
		manager: manager,
		sender:  sender,
		out:     out,
		now:     time.Now,
		prefix:  sender.LocalID().Short() + " admin",
	}
}

// SetClock replaces time.Now for elapsed-time columns
func (c *Console) SetClock(now func() time.Time) {
	c.now = now
}

// Execute runs one command line. Invalid input only prints the usage line.
func (c *Console) Execute(line string) error {
	line = strings.TrimRight(line, "\r\n")
	cmd, arg, _ := strings.Cut(line, " ")

	switch {
	case cmd == "b" && arg != "":
		return c.announce(arg)
	case cmd == "i" && arg == "":
		c.showInfo()
	case cmd == "c" && arg == "":
		c.showConnected()
	case cmd == "a" && arg == "":
		c.showInUse()
	case cmd == "w" && arg == "":
		c.showWaiting()
	case cmd == "r" && arg == "":
		c.showRegistered()
	case cmd == "s" && arg == "":
		c.showStats()
	default:
		fmt.Fprintln(c.out, Usage)
		logger.Debug(c.prefix, "rejected command %q", line)
		return fmt.Errorf("%q: %w", line, ErrUnknownCommand)
	}
	return nil
}

// announce unicasts an Announcement to every member of the connected set
func (c *Console) announce(text string) error {
	if len(text) >= MaxAnnouncementSize {
		text = text[:MaxAnnouncementSize-1]
	}

	payload, err := msg.Encode(&msg.Announcement{SrcID: c.sender.LocalID(), Text: []byte(text)})
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}

	members := c.manager.Connected()
	if len(members) == 0 {
		fmt.Fprintln(c.out, "[ADMIN] No connected users to announce to.")
		return nil
	}

	sent := 0
	for _, rec := range members {
		if err := c.sender.Send(payload, rec.UserID); err != nil {
			logger.Warn(c.prefix, "announcement to user %d failed: %v", rec.UserID, err)
			continue
		}
		sent++
	}

	fmt.Fprintf(c.out, "[ADMIN] Announcement sent to %d users: %s\n", sent, text)
	logger.Info(c.prefix, "announcement sent to %d/%d users", sent, len(members))
	return nil
}

func (c *Console) showInfo() {
	k := c.manager.Counters()
	fmt.Fprintln(c.out, "\n=== BOOTH INFORMATION ===")
	fmt.Fprintf(c.out, "Booth ID: %d\n", k.BoothID)
	fmt.Fprintf(c.out, "Capacity: %d\n", k.Capacity)
	fmt.Fprintf(c.out, "Connected Users: %d\n", k.CurrentUsers)
	fmt.Fprintf(c.out, "Active Users: %d\n", k.ActiveUsers)
	fmt.Fprintf(c.out, "Waiting Users: %d\n", k.WaitingUsers)
	fmt.Fprintf(c.out, "Registered Users: %d\n", k.RegisteredUsers)
	fmt.Fprintf(c.out, "Next Waiting Number: %d\n", k.NextWaitingNumber)
	fmt.Fprintln(c.out, "=========================")
}

func (c *Console) showConnected() {
	recs := c.manager.Connected()
	fmt.Fprintln(c.out, "\n=== CONNECTED USERS ===")
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No users connected.")
	} else {
		fmt.Fprintln(c.out, "ID  | Status    | RSSI | SNR | Connected")
		fmt.Fprintln(c.out, "----+-----------+------+-----+----------")
		for _, r := range recs {
			fmt.Fprintf(c.out, "%-3d | %-9s | %-4d | %-3d | %s\n",
				r.UserID, r.Status, r.RSSI, r.SNR, c.since(r.ConnectTime))
		}
	}
	fmt.Fprintln(c.out, "=======================")
}

func (c *Console) showInUse() {
	recs := c.manager.InUse()
	fmt.Fprintln(c.out, "\n=== IN-USE USERS ===")
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No users in the experience.")
	} else {
		fmt.Fprintln(c.out, "ID  | RSSI | SNR | In Use")
		fmt.Fprintln(c.out, "----+------+-----+-------")
		for _, r := range recs {
			fmt.Fprintf(c.out, "%-3d | %-4d | %-3d | %s\n", r.UserID, r.RSSI, r.SNR, c.since(r.UseStartTime))
		}
	}
	fmt.Fprintf(c.out, "%d/%d slots used\n", len(recs), c.manager.Capacity())
	fmt.Fprintln(c.out, "====================")
}

func (c *Console) showWaiting() {
	recs := c.manager.Waiting()
	fmt.Fprintln(c.out, "\n=== WAITING QUEUE ===")
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No users waiting.")
	} else {
		fmt.Fprintln(c.out, "#   | ID  | RSSI | SNR")
		fmt.Fprintln(c.out, "----+-----+------+----")
		for _, r := range recs {
			fmt.Fprintf(c.out, "%-3d | %-3d | %-4d | %d\n", r.WaitingNumber, r.UserID, r.RSSI, r.SNR)
		}
	}
	fmt.Fprintln(c.out, "=====================")
}

func (c *Console) showRegistered() {
	recs := c.manager.Registered()
	fmt.Fprintln(c.out, "\n=== REGISTERED USERS ===")
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No registered users.")
	} else {
		fmt.Fprintln(c.out, "ID  | Total Use")
		fmt.Fprintln(c.out, "----+----------")
		for _, r := range recs {
			fmt.Fprintf(c.out, "%-3d | %s\n", r.UserID, r.TotalUseTime.Round(time.Second))
		}
	}
	fmt.Fprintln(c.out, "========================")
}

func (c *Console) showStats() {
	s := c.manager.Stats()
	fmt.Fprintln(c.out, "\n=== BOOTH STATISTICS ===")
	fmt.Fprintf(c.out, "Utilization: %.1f%%\n", s.Utilization*100)
	fmt.Fprintf(c.out, "Registered Users: %d\n", s.RegisteredUsers)
	fmt.Fprintf(c.out, "Total Use Time: %s\n", s.TotalUseTime.Round(time.Second))
	fmt.Fprintf(c.out, "Average Use Time: %s\n", s.AverageUseTime.Round(time.Second))
	fmt.Fprintln(c.out, "========================")

	if snap, err := c.manager.Snapshot(); err == nil {
		logger.DebugJSON(c.prefix, "admission snapshot", snap)
	}
}

func (c *Console) since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return c.now().Sub(t).Round(time.Second).String()
}
