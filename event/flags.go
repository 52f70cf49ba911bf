// Package event holds the coalescing flag set that hands work from
// asynchronous producers to the single dispatch loop.
package event

import (
	"strings"
	"sync/atomic"
)

// Flag is one named event
type Flag uint32

const (
	MsgReceived Flag = 1 << iota
	DataToSend
	DataSendConfirmed
	ReconfigSrcIDConfirmed
	ScanComplete
	ConnectRequest
	ConnectResponse
	ConnectionEstablished
	TimerExpired
	InputReady
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{MsgReceived, "msgRcvd"},
	{DataToSend, "dataToSend"},
	{DataSendConfirmed, "dataSendCnf"},
	{ReconfigSrcIDConfirmed, "recfgSrcIdCnf"},
	{ScanComplete, "scanComplete"},
	{ConnectRequest, "connectRequest"},
	{ConnectResponse, "connectResponse"},
	{ConnectionEstablished, "connectionEstablished"},
	{TimerExpired, "timerExpired"},
	{InputReady, "inputReady"},
}

func (f Flag) String() string {
	for _, fn := range flagNames {
		if fn.flag == f {
			return fn.name
		}
	}
	return "unknown"
}

// Flags is a set of sticky flags. Setting a flag twice is the same as setting
// it once. All methods are safe for concurrent use.
type Flags struct {
	bits atomic.Uint32
}

// Set raises f
func (s *Flags) Set(f Flag) {
	for {
		old := s.bits.Load()
		if old&uint32(f) != 0 {
			return
		}
		if s.bits.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// Clear lowers f
func (s *Flags) Clear(f Flag) {
	for {
		old := s.bits.Load()
		if old&uint32(f) == 0 {
			return
		}
		if s.bits.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// Check reports whether f is raised
func (s *Flags) Check(f Flag) bool {
	return s.bits.Load()&uint32(f) != 0
}

// ClearAll lowers every flag
func (s *Flags) ClearAll() {
	s.bits.Store(0)
}

// Any reports whether at least one flag is raised
func (s *Flags) Any() bool {
	return s.bits.Load() != 0
}

// String lists the raised flags, e.g. "msgRcvd|dataToSend"
func (s *Flags) String() string {
	bits := s.bits.Load()
	var names []string
	for _, fn := range flagNames {
		if bits&uint32(fn.flag) != 0 {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
