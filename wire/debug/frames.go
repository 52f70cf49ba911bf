// Package debug writes best-effort JSONL logs of raw link frames.
package debug

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/boothmesh/util"
	"github.com/user/boothmesh/wire/msg"
)

// FramesFile is the log file name inside a node's debug directory
const FramesFile = "frames.jsonl"

// FrameLogger writes human-readable JSON logs of binary frames.
// These files are write-only and never read by the node itself.
type FrameLogger struct {
	nodeID   msg.NodeID
	debugDir string
	enabled  bool
	mu       sync.Mutex
}

// FrameLog is one logged frame
type FrameLog struct {
	Timestamp string                 `json:"timestamp"`
	Direction string                 `json:"direction"` // "tx" or "rx"
	Node      int                    `json:"node"`
	Peer      int                    `json:"peer"`
	Tag       string                 `json:"tag"`
	TagName   string                 `json:"tag_name"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	RawHex    string                 `json:"raw_hex"`
}

// NewFrameLogger creates a logger under {dataDir}/node-N/debug
func NewFrameLogger(nodeID msg.NodeID, enabled bool) *FrameLogger {
	if !enabled {
		return &FrameLogger{enabled: false}
	}
	return NewFrameLoggerAt(nodeID, filepath.Join(util.GetNodeDir(uint8(nodeID)), "debug"))
}

// NewFrameLoggerAt creates a logger writing into dir
func NewFrameLoggerAt(nodeID msg.NodeID, dir string) *FrameLogger {
	os.MkdirAll(dir, 0755)
	return &FrameLogger{
		nodeID:   nodeID,
		debugDir: dir,
		enabled:  true,
	}
}

// Path returns the frames file path, empty when disabled
func (d *FrameLogger) Path() string {
	if d == nil || !d.enabled {
		return ""
	}
	return filepath.Join(d.debugDir, FramesFile)
}

// SetNode changes the id recorded on subsequent frames
func (d *FrameLogger) SetNode(nodeID msg.NodeID) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.nodeID = nodeID
	d.mu.Unlock()
}

// LogFrame records one tx or rx frame. A nil or disabled logger is a no-op.
func (d *FrameLogger) LogFrame(direction string, peer msg.NodeID, payload []byte) {
	if d == nil || !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := FrameLog{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Direction: direction,
		Node:      int(d.nodeID),
		Peer:      int(peer),
		RawHex:    hex.EncodeToString(payload),
	}

	m, err := msg.Decode(payload)
	if err != nil {
		entry.Error = err.Error()
		if len(payload) > 0 {
			entry.Tag = fmt.Sprintf("0x%02X", payload[0])
			entry.TagName = msg.TagName(msg.Tag(payload[0]))
		}
	} else {
		entry.Tag = fmt.Sprintf("0x%02X", uint8(m.Tag()))
		entry.TagName = msg.TagName(m.Tag())
		entry.Data = describe(m)
	}

	d.appendJSONL(entry)
}

func (d *FrameLogger) appendJSONL(data interface{}) {
	f, err := os.OpenFile(filepath.Join(d.debugDir, FramesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return // best-effort
	}
	defer f.Close()

	line, err := json.Marshal(data)
	if err != nil {
		return
	}

	f.Write(line)
	f.Write([]byte("\n"))
}

// describe extracts the interesting fields of a decoded message
func describe(m msg.Message) map[string]interface{} {
	data := make(map[string]interface{})

	control := func(src, dest msg.NodeID, status uint8) {
		data["src"] = int(src)
		data["dest"] = int(dest)
		data["status"] = statusName(status)
	}

	switch p := m.(type) {
	case *msg.Beacon:
		data["sender"] = int(p.SenderID)
		data["role"] = p.SenderRole.String()
	case *msg.ConnectionRequest:
		control(p.SrcID, p.DestID, p.Status)
	case *msg.ConnectionResponse:
		control(p.SrcID, p.DestID, p.Status)
	case *msg.Disconnect:
		control(p.SrcID, p.DestID, p.Status)
	case *msg.ExperienceRequest:
		control(p.SrcID, p.DestID, p.Status)
	case *msg.ExperienceResponse:
		control(p.SrcID, p.DestID, p.Status)
	case *msg.ExperienceExit:
		control(p.SrcID, p.DestID, p.Status)
	case *msg.Data:
		data["text"] = string(p.Text)
	case *msg.Announcement:
		data["src"] = int(p.SrcID)
		data["text"] = string(p.Text)
	case *msg.Broadcast:
		data["src"] = int(p.SrcID)
		data["text"] = string(p.Text)
	case *msg.Unrecognized:
		data["body_len"] = len(p.Body)
	}

	return data
}

func statusName(status uint8) string {
	switch status {
	case msg.StatusRequest:
		return "request"
	case msg.StatusAccept:
		return "accept"
	case msg.StatusReject:
		return "reject"
	default:
		return fmt.Sprintf("0x%02X", status)
	}
}
