// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import "math"

// Snapshot is an immutable copy of the amplifier state
type Snapshot struct {
	Power       string            `json:"power" cbor:"0,keyasint"`
	Source      string            `json:"source" cbor:"1,keyasint"`
	Volume      float64           `json:"volume" cbor:"2,keyasint"`
	VolumeRaw   int               `json:"volume_raw" cbor:"3,keyasint"`
	VolumeMin   int               `json:"volume_min" cbor:"4,keyasint"`
	VolumeMax   int               `json:"volume_max" cbor:"5,keyasint"`
	VolumeLimit int               `json:"volume_limit" cbor:"6,keyasint"`
	Speakers    string            `json:"speakers" cbor:"7,keyasint"`
	SpeakerA    bool              `json:"speaker_a" cbor:"8,keyasint"`
	SpeakerB    bool              `json:"speaker_b" cbor:"9,keyasint"`
	Mute        bool              `json:"mute" cbor:"10,keyasint"`
	Frequency   int               `json:"frequency" cbor:"11,keyasint"`
	Signal      bool              `json:"signal" cbor:"12,keyasint"`
	Display     Display           `json:"display" cbor:"13,keyasint"`
	Inactive    bool              `json:"inactive" cbor:"14,keyasint"`
	Pending     map[string]string `json:"pending,omitempty" cbor:"15,keyasint,omitempty"`
}

// Snapshot copies the current state
func (a *Amplifier) Snapshot() Snapshot {
	return Snapshot{
		Power:       a.power.String(),
		Source:      a.source,
		Volume:      math.Round(a.Volume()*10) / 10,
		VolumeRaw:   a.volumeRaw,
		VolumeMin:   a.volumeRawMin,
		VolumeMax:   a.volumeRawMax,
		VolumeLimit: a.VolumeRawLimit(),
		Speakers:    a.Speakers().String(),
		SpeakerA:    a.speakerA.IsOn(),
		SpeakerB:    a.speakerB.IsOn(),
		Mute:        a.mute.IsOn(),
		Frequency:   a.frequency,
		Signal:      a.HasSignal(),
		Display:     a.display,
		Inactive:    a.inactive,
		Pending:     a.Pending(),
	}
}

// IsOn reports whether the snapshot shows a powered amplifier
func (s Snapshot) IsOn() bool {
	return s.Power == On.String()
}
