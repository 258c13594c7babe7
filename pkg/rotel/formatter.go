// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"fmt"
	"time"
)

// FormatFrame formats a received frame into a human-readable line
func FormatFrame(t time.Time, frame string) string {
	msg := ParseMessage(Sanitize(frame))
	return fmt.Sprintf("[%s] %-16s %s\n", t.Format("15:04:05.000"), msg.Kind, FormatDetail(msg))
}

// FormatDetail describes the decoded content of a message
func FormatDetail(msg Message) string {
	if msg.Malformed {
		return fmt.Sprintf("malformed %q", msg.Raw)
	}

	switch msg.Kind {
	case MsgPowerOn:
		return "power=on"
	case MsgPowerOff:
		return "power=off"
	case MsgMute:
		return fmt.Sprintf("mute=%t", msg.On)
	case MsgVolume:
		switch msg.Bound {
		case VolumeAtMin:
			return "volume=min"
		case VolumeAtMax:
			return "volume=max"
		}
		return fmt.Sprintf("volume=%d", msg.Int)
	case MsgVolumeMin, MsgVolumeMax:
		return fmt.Sprintf("%d", msg.Int)
	case MsgSource:
		return "source=" + msg.Value
	case MsgSpeaker:
		return "speakers=" + msg.Speakers.String()
	case MsgFrequency:
		if msg.Frequency == 0 {
			return "no signal"
		}
		return fmt.Sprintf("%.1f kHz", float64(msg.Frequency)/1000)
	case MsgUnknown:
		return fmt.Sprintf("%q", msg.Raw)
	}
	return msg.Raw
}

// FormatDisplay formats a front panel update
func FormatDisplay(t time.Time, d Display) string {
	return fmt.Sprintf("[%s] %-16s |%s|%s|\n", t.Format("15:04:05.000"), "DISPLAY", d.Line1, d.Line2)
}
