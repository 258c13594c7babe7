// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import "strings"

// SpeakerSet is the combination of enabled speaker outputs
type SpeakerSet uint8

const (
	SpeakersNone SpeakerSet = 0
	SpeakersA    SpeakerSet = 1 << 0
	SpeakersB    SpeakerSet = 1 << 1
	SpeakersBoth            = SpeakersA | SpeakersB
)

// ParseSpeakerSet accepts the device and command spellings of a speaker set
func ParseSpeakerSet(s string) (SpeakerSet, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return SpeakersA, true
	case "b":
		return SpeakersB, true
	case "a_b", "ab", "both":
		return SpeakersBoth, true
	case "off", "none", "false", "0":
		return SpeakersNone, true
	}
	return SpeakersNone, false
}

// A reports whether output A is enabled
func (s SpeakerSet) A() bool { return s&SpeakersA != 0 }

// B reports whether output B is enabled
func (s SpeakerSet) B() bool { return s&SpeakersB != 0 }

func (s SpeakerSet) String() string {
	switch s {
	case SpeakersA:
		return "a"
	case SpeakersB:
		return "b"
	case SpeakersBoth:
		return "both"
	default:
		return "none"
	}
}
