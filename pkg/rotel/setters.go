// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"strings"
	"time"
)

// Buttons forwarded to the device unchanged
var passthroughButtons = map[string]bool{
	"play": true, "pause": true, "stop": true,
	"track_fwd": true, "track_back": true, "fast_fwd": true, "fast_back": true,
	"mute": true, "random": true, "repeat": true,
	"menu": true, "exit": true, "enter": true,
	"up": true, "down": true, "left": true, "right": true,
	"tone_on": true, "tone_off": true,
	"bass_up": true, "bass_down": true, "treble_up": true, "treble_down": true,
	"balance_right": true, "balance_left": true, "balance_000": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
	"power_toggle": true,
}

// SetPower requests power on or off. Nothing is sent when the device has
// already confirmed the requested state.
func (a *Amplifier) SetPower(on bool) bool {
	if on {
		if !a.power.IsOn() {
			a.send("power_on")
		}
		return true
	}
	if a.power != Off {
		a.send("power_off")
	}
	return false
}

// TogglePower sends the power toggle button
func (a *Amplifier) TogglePower() {
	a.send("power_toggle")
}

// SetMute requests a mute state
func (a *Amplifier) SetMute(on bool) bool {
	if !a.power.IsOn() || a.mute == TriStateOf(on) {
		return a.mute.IsOn()
	}
	if on {
		a.send("mute_on")
	} else {
		a.send("mute_off")
	}
	return on
}

// SetSource requests an input by name or alias
func (a *Amplifier) SetSource(name string) string {
	src, ok := a.catalog.Resolve(name)
	if !ok {
		a.log.Warnf("! Unknown source: %q", name)
		return a.source
	}
	if !a.power.IsOn() || src == a.source {
		return a.source
	}
	a.send(src)
	return src
}

// SetSourceDeferred selects the source now if the amplifier is on, otherwise
// remembers it until power-up or until timeout passes
func (a *Amplifier) SetSourceDeferred(name string, timeout time.Duration) string {
	src, ok := a.catalog.Resolve(name)
	if !ok {
		a.log.Warnf("! Unknown source: %q", name)
		return a.source
	}
	if a.power.IsOn() {
		return a.SetSource(src)
	}
	a.setPending(&pendingSetting{kind: PendingSource, source: src}, timeout)
	return src
}

// The device only offers toggles for the speaker outputs, so a command is
// sent only when the current state is known to differ.
func (a *Amplifier) setSpeaker(current TriState, on bool, command string) bool {
	if !a.power.IsOn() || !current.Known() || current == TriStateOf(on) {
		return current.IsOn()
	}
	a.send(command)
	return on
}

// SetSpeakerA requests output A on or off
func (a *Amplifier) SetSpeakerA(on bool) bool {
	return a.setSpeaker(a.speakerA, on, "speaker_a")
}

// SetSpeakerB requests output B on or off
func (a *Amplifier) SetSpeakerB(on bool) bool {
	return a.setSpeaker(a.speakerB, on, "speaker_b")
}

// SetSpeakers requests a combination of outputs using the fewest toggles.
// Outputs in an unknown state are left alone and reported as off.
func (a *Amplifier) SetSpeakers(set SpeakerSet) SpeakerSet {
	if !a.power.IsOn() {
		return a.Speakers()
	}
	var got SpeakerSet
	if a.SetSpeakerA(set.A()) {
		got |= SpeakersA
	}
	if a.SetSpeakerB(set.B()) {
		got |= SpeakersB
	}
	return got
}

// SetSpeakerADeferred sets output A now if the amplifier is on, otherwise at
// power-up
func (a *Amplifier) SetSpeakerADeferred(on bool, timeout time.Duration) bool {
	if a.power.IsOn() {
		return a.SetSpeakerA(on)
	}
	a.setPending(&pendingSetting{kind: PendingSpeakerA, on: on}, timeout)
	return on
}

// SetSpeakerBDeferred sets output B now if the amplifier is on, otherwise at
// power-up
func (a *Amplifier) SetSpeakerBDeferred(on bool, timeout time.Duration) bool {
	if a.power.IsOn() {
		return a.SetSpeakerB(on)
	}
	a.setPending(&pendingSetting{kind: PendingSpeakerB, on: on}, timeout)
	return on
}

func (a *Amplifier) resolvePendingSpeakers() {
	if p := a.pending[PendingSpeakerA]; p != nil && a.speakerA == TriStateOf(p.on) {
		a.clearPending(PendingSpeakerA)
	}
	if p := a.pending[PendingSpeakerB]; p != nil && a.speakerB == TriStateOf(p.on) {
		a.clearPending(PendingSpeakerB)
	}
}

// SendButton presses a remote-control button. Only power buttons work while
// the amplifier is off.
func (a *Amplifier) SendButton(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if !a.power.IsOn() && name != "power_on" && name != "power_toggle" {
		a.log.Debugf("Ignoring button %q while powered off", name)
		return false
	}

	switch {
	case passthroughButtons[name]:
		a.send(name)
		return true
	case name == "volume_up":
		return a.VolumeUp()
	case name == "volume_down":
		return a.VolumeDown()
	case name == "power_on":
		return a.SetPower(true)
	case name == "power_off":
		a.SetPower(false)
		return true
	case name == "mute_on":
		a.SetMute(true)
		return true
	case name == "mute_off":
		a.SetMute(false)
		return true
	}

	if src, ok := a.catalog.Resolve(name); ok {
		a.SetSource(src)
		return true
	}
	a.log.Warnf("! Unknown button: %q", name)
	return false
}
