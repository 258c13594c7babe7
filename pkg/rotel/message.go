// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MessageKind identifies a device response
type MessageKind int

const (
	MsgUnknown MessageKind = iota
	MsgPowerOn             // power=on
	MsgPoweringUp          // power_on
	MsgPowerUpPending      // 00:power_on
	MsgPowerOff            // power=standby, power=off, power_off, 00:power_off
	MsgMute                // mute=on|off
	MsgVolume              // volume=N|min|max
	MsgVolumeMin           // volume_min=N
	MsgVolumeMax           // volume_max=N
	MsgSource              // source=NAME
	MsgSpeaker             // speaker=a|b|a_b|off
	MsgTone                // bass=, treble=, balance=, tone=
	MsgPlayStatus          // play_status=
	MsgFrequency           // freq=
	MsgPCUSBClass          // pcusb_class=
	MsgDisplayUpdate       // display_update=
	MsgDimmer              // dimmer=, dimmer_
)

var kindNames = map[MessageKind]string{
	MsgUnknown:        "UNKNOWN",
	MsgPowerOn:        "POWER_ON",
	MsgPoweringUp:     "POWERING_UP",
	MsgPowerUpPending: "POWER_UP_PENDING",
	MsgPowerOff:       "POWER_OFF",
	MsgMute:           "MUTE",
	MsgVolume:         "VOLUME",
	MsgVolumeMin:      "VOLUME_MIN",
	MsgVolumeMax:      "VOLUME_MAX",
	MsgSource:         "SOURCE",
	MsgSpeaker:        "SPEAKER",
	MsgTone:           "TONE",
	MsgPlayStatus:     "PLAY_STATUS",
	MsgFrequency:      "FREQUENCY",
	MsgPCUSBClass:     "PCUSB_CLASS",
	MsgDisplayUpdate:  "DISPLAY_UPDATE",
	MsgDimmer:         "DIMMER",
}

func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// VolumeBound marks a volume report of the range end rather than a number
type VolumeBound int

const (
	VolumeExact VolumeBound = iota
	VolumeAtMin
	VolumeAtMax
)

// Message is a decoded device frame. Only the fields relevant to Kind are set.
type Message struct {
	Kind MessageKind
	Raw  string

	// Value is the text after '=' for key=value responses
	Value string

	On        bool        // MsgMute
	Int       int         // MsgVolume, MsgVolumeMin, MsgVolumeMax
	Bound     VolumeBound // MsgVolume
	Speakers  SpeakerSet  // MsgSpeaker
	Frequency int         // MsgFrequency, Hz; 0 means no signal
	Malformed bool
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9=_,./:+-]+`)

// Sanitize strips everything outside the device's response alphabet
func Sanitize(frame string) string {
	return unsafeChars.ReplaceAllString(frame, "")
}

// ParseMessage decodes a sanitized frame into the closed response vocabulary
func ParseMessage(frame string) Message {
	msg := Message{Raw: frame}
	key, value, hasValue := strings.Cut(frame, "=")
	msg.Value = value

	if !hasValue {
		switch frame {
		case "power_on":
			msg.Kind = MsgPoweringUp
		case "00:power_on":
			msg.Kind = MsgPowerUpPending
		case "power_off", "00:power_off":
			msg.Kind = MsgPowerOff
		}
		return msg
	}

	switch key {
	case "power":
		switch value {
		case "on":
			msg.Kind = MsgPowerOn
		case "standby", "off":
			msg.Kind = MsgPowerOff
		}
	case "mute":
		switch value {
		case "on":
			msg.Kind, msg.On = MsgMute, true
		case "off":
			msg.Kind, msg.On = MsgMute, false
		}
	case "volume":
		msg.Kind = MsgVolume
		switch value {
		case "min":
			msg.Bound = VolumeAtMin
		case "max":
			msg.Bound = VolumeAtMax
		default:
			msg.Int, msg.Malformed = parseLevel(value)
		}
	case "volume_min":
		msg.Kind = MsgVolumeMin
		msg.Int, msg.Malformed = parseLevel(value)
	case "volume_max":
		msg.Kind = MsgVolumeMax
		msg.Int, msg.Malformed = parseLevel(value)
	case "source":
		msg.Kind = MsgSource
		msg.Value = normalizeSource(value)
	case "speaker":
		msg.Kind = MsgSpeaker
		set, ok := ParseSpeakerSet(value)
		msg.Speakers, msg.Malformed = set, !ok
	case "bass", "treble", "balance", "tone":
		msg.Kind = MsgTone
	case "play_status":
		msg.Kind = MsgPlayStatus
	case "freq":
		msg.Kind = MsgFrequency
		msg.Frequency = parseFrequency(value)
	case "pcusb_class":
		msg.Kind = MsgPCUSBClass
	case "display_update":
		msg.Kind = MsgDisplayUpdate
	default:
		if key == "dimmer" || strings.HasPrefix(key, "dimmer_") {
			msg.Kind = MsgDimmer
		}
	}
	return msg
}

// parseLevel reads a zero-padded decimal, possibly signed
func parseLevel(s string) (int, bool) {
	s = strings.TrimLeft(s, " ")
	neg := strings.HasPrefix(s, "-")
	if neg || strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true
	}
	if neg {
		n = -n
	}
	return n, false
}

// normalizeSource maps the device's spelling of an input to the canonical name
func normalizeSource(s string) string {
	if s == "analog_cd" {
		return "cd"
	}
	return strings.TrimSuffix(s, "_cd")
}

// parseFrequency converts a kHz report to Hz. Non-numeric reports such as
// "off" mean no digital signal.
func parseFrequency(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return 0
	}
	return int(math.Round(f * 1000))
}
