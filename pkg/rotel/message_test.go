// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"strings"
	"testing"
	"time"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		frame string
		want  Message
	}{
		{"power=on", Message{Kind: MsgPowerOn}},
		{"power=standby", Message{Kind: MsgPowerOff}},
		{"power=off", Message{Kind: MsgPowerOff}},
		{"power_on", Message{Kind: MsgPoweringUp}},
		{"00:power_on", Message{Kind: MsgPowerUpPending}},
		{"00:power_off", Message{Kind: MsgPowerOff}},
		{"power_off", Message{Kind: MsgPowerOff}},
		{"mute=on", Message{Kind: MsgMute, On: true}},
		{"mute=off", Message{Kind: MsgMute}},
		{"volume=045", Message{Kind: MsgVolume, Int: 45}},
		{"volume=00", Message{Kind: MsgVolume}},
		{"volume=min", Message{Kind: MsgVolume, Bound: VolumeAtMin}},
		{"volume=max", Message{Kind: MsgVolume, Bound: VolumeAtMax}},
		{"volume=loud", Message{Kind: MsgVolume, Malformed: true}},
		{"volume_min=0", Message{Kind: MsgVolumeMin}},
		{"volume_max=096", Message{Kind: MsgVolumeMax, Int: 96}},
		{"source=opt1", Message{Kind: MsgSource, Value: "opt1"}},
		{"source=analog_cd", Message{Kind: MsgSource, Value: "cd"}},
		{"source=coax1_cd", Message{Kind: MsgSource, Value: "coax1"}},
		{"speaker=a_b", Message{Kind: MsgSpeaker, Speakers: SpeakersBoth}},
		{"speaker=b", Message{Kind: MsgSpeaker, Speakers: SpeakersB}},
		{"speaker=off", Message{Kind: MsgSpeaker, Speakers: SpeakersNone}},
		{"speaker=c", Message{Kind: MsgSpeaker, Malformed: true}},
		{"bass=+02", Message{Kind: MsgTone}},
		{"balance=L05", Message{Kind: MsgTone}},
		{"play_status=play", Message{Kind: MsgPlayStatus}},
		{"freq=44.1", Message{Kind: MsgFrequency, Frequency: 44100}},
		{"freq=192", Message{Kind: MsgFrequency, Frequency: 192000}},
		{"freq=off", Message{Kind: MsgFrequency}},
		{"freq=0.5", Message{Kind: MsgFrequency}},
		{"pcusb_class=2", Message{Kind: MsgPCUSBClass}},
		{"display_update=auto", Message{Kind: MsgDisplayUpdate}},
		{"dimmer=3", Message{Kind: MsgDimmer}},
		{"dimmer_up", Message{Kind: MsgUnknown}},
		{"dimmer_level=3", Message{Kind: MsgDimmer}},
		{"hello", Message{Kind: MsgUnknown}},
		{"power=maybe", Message{Kind: MsgUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			got := ParseMessage(tt.frame)
			if got.Kind != tt.want.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if got.Raw != tt.frame {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.frame)
			}
			if got.On != tt.want.On || got.Int != tt.want.Int || got.Bound != tt.want.Bound {
				t.Errorf("got On=%v Int=%d Bound=%d, want On=%v Int=%d Bound=%d",
					got.On, got.Int, got.Bound, tt.want.On, tt.want.Int, tt.want.Bound)
			}
			if got.Speakers != tt.want.Speakers || got.Frequency != tt.want.Frequency {
				t.Errorf("got Speakers=%v Frequency=%d, want Speakers=%v Frequency=%d",
					got.Speakers, got.Frequency, tt.want.Speakers, tt.want.Frequency)
			}
			if got.Malformed != tt.want.Malformed {
				t.Errorf("Malformed = %v, want %v", got.Malformed, tt.want.Malformed)
			}
			if tt.want.Value != "" && got.Value != tt.want.Value {
				t.Errorf("Value = %q, want %q", got.Value, tt.want.Value)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"power=on", "power=on"},
		{"\r\nvolume=42 ", "volume=42"},
		{"freq=44.1", "freq=44.1"},
		{"bass=+02", "bass=+02"},
		{"\x00\xffsource=cd\x07", "source=cd"},
		{"!!", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSpeakerSet(t *testing.T) {
	tests := []struct {
		in   string
		want SpeakerSet
		ok   bool
	}{
		{"a", SpeakersA, true},
		{"B", SpeakersB, true},
		{"ab", SpeakersBoth, true},
		{"a_b", SpeakersBoth, true},
		{"both", SpeakersBoth, true},
		{"none", SpeakersNone, true},
		{"off", SpeakersNone, true},
		{"0", SpeakersNone, true},
		{"c", SpeakersNone, false},
	}
	for _, tt := range tests {
		got, ok := ParseSpeakerSet(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSpeakerSet(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSourceCatalog(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name    string
		want    string
		ok      bool
		digital bool
	}{
		{"cd", "cd", true, false},
		{"XLR", "bal_xlr", true, false},
		{"pc", "pc_usb", true, true},
		{"opt2", "opt2", true, true},
		{"phono", "phono", true, false},
		{"bluetooth", "", false, false},
	}
	for _, tt := range tests {
		got, ok := c.Resolve(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
		if ok && c.IsDigital(got) != tt.digital {
			t.Errorf("IsDigital(%q) = %v, want %v", got, !tt.digital, tt.digital)
		}
	}

	if c.IsKnown("xlr") {
		t.Error("alias reported as canonical source")
	}
	if n := len(c.Names()); n != 12 {
		t.Errorf("Names() has %d entries, want 12", n)
	}
}

func TestFormatFrame(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		frame    string
		contains string
	}{
		{"volume=42", "volume=42"},
		{"freq=44.1", "44.1 kHz"},
		{"speaker=a_b", "speakers=both"},
		{"wat", `"wat"`},
	}
	for _, tt := range tests {
		got := FormatFrame(ts, tt.frame)
		if !strings.HasPrefix(got, "[12:00:00.000]") || !strings.Contains(got, tt.contains) {
			t.Errorf("FormatFrame(%q) = %q, want it to contain %q", tt.frame, got, tt.contains)
		}
	}
}
