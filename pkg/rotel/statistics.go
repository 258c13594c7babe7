// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Statistics counts serial link traffic. Counters are updated on the event
// loop and may be read from any goroutine.
type Statistics struct {
	startTime atomic.Int64

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	bytesReceived    atomic.Uint64
	bytesSent        atomic.Uint64
	displayUpdates   atomic.Uint64
	sendErrors       atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the link counters
type StatsSnapshot struct {
	Uptime           time.Duration `json:"-"`
	UptimeSeconds    float64       `json:"uptime_seconds"`
	MessagesReceived uint64        `json:"messages_received"`
	MessagesSent     uint64        `json:"messages_sent"`
	BytesReceived    uint64        `json:"bytes_received"`
	BytesSent        uint64        `json:"bytes_sent"`
	DisplayUpdates   uint64        `json:"display_updates"`
	SendErrors       uint64        `json:"send_errors"`

	// Rates (calculated)
	ReceiveRate float64 `json:"receive_rate"` // messages/sec
	SendRate    float64 `json:"send_rate"`    // messages/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.startTime.Store(time.Now().UnixNano())
	return s
}

func (s *Statistics) received(frames, bytes int) {
	s.messagesReceived.Add(uint64(frames))
	s.bytesReceived.Add(uint64(bytes))
}

func (s *Statistics) sent(bytes int) {
	s.messagesSent.Add(1)
	s.bytesSent.Add(uint64(bytes))
}

// Snapshot returns the current counters and rates
func (s *Statistics) Snapshot() StatsSnapshot {
	elapsed := time.Since(time.Unix(0, s.startTime.Load()))
	snap := StatsSnapshot{
		Uptime:           elapsed,
		UptimeSeconds:    elapsed.Seconds(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		BytesSent:        s.bytesSent.Load(),
		DisplayUpdates:   s.displayUpdates.Load(),
		SendErrors:       s.sendErrors.Load(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		snap.ReceiveRate = float64(snap.MessagesReceived) / secs
		snap.SendRate = float64(snap.MessagesSent) / secs
	}
	return snap
}

// String returns a formatted statistics summary
func (s StatsSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Link Statistics (%.0f seconds) ===\n", s.Uptime.Seconds())
	fmt.Fprintf(&b, "Received:        %8d msgs %10d bytes\n", s.MessagesReceived, s.BytesReceived)
	fmt.Fprintf(&b, "Sent:            %8d msgs %10d bytes\n", s.MessagesSent, s.BytesSent)
	if s.DisplayUpdates > 0 {
		fmt.Fprintf(&b, "Display Updates: %8d\n", s.DisplayUpdates)
	}
	if s.SendErrors > 0 {
		fmt.Fprintf(&b, "Send Errors:     %8d\n", s.SendErrors)
	}
	fmt.Fprintf(&b, "Receive Rate:    %8.1f msgs/sec\n", s.ReceiveRate)
	fmt.Fprintf(&b, "Send Rate:       %8.1f msgs/sec\n", s.SendRate)
	b.WriteString("====================================\n")
	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.startTime.Store(time.Now().UnixNano())
	s.messagesReceived.Store(0)
	s.messagesSent.Store(0)
	s.bytesReceived.Store(0)
	s.bytesSent.Store(0)
	s.displayUpdates.Store(0)
	s.sendErrors.Store(0)
}
