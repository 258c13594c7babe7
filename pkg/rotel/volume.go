// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"math"
	"strconv"
	"time"
)

// VolumeRawMin returns the device's minimum raw volume
func (a *Amplifier) VolumeRawMin() int { return a.volumeRawMin }

// VolumeRawMax returns the device's maximum raw volume
func (a *Amplifier) VolumeRawMax() int { return a.volumeRawMax }

// VolumeRaw returns the cached raw volume
func (a *Amplifier) VolumeRaw() int { return a.volumeRaw }

// VolumeRawLimit returns the effective volume limit, always within the
// device range
func (a *Amplifier) VolumeRawLimit() int {
	limit := a.volumeLimit
	if limit <= 0 || limit > a.volumeRawMax {
		limit = a.volumeRawMax
	}
	if limit < a.volumeRawMin {
		limit = a.volumeRawMin
	}
	return limit
}

// SetVolumeRawLimit sets the ceiling for raw volume. Zero or less removes
// the limit; values above the device maximum are clamped.
func (a *Amplifier) SetVolumeRawLimit(limit int) int {
	switch {
	case limit <= 0:
		limit = 0
	case limit > a.volumeRawMax:
		limit = a.volumeRawMax
	}
	a.volumeLimit = limit
	return a.VolumeRawLimit()
}

// PercentToRaw converts a percentage of the limit into a raw level
func (a *Amplifier) PercentToRaw(percent float64) float64 {
	span := float64(a.VolumeRawLimit() - a.volumeRawMin)
	return percent/100*span + float64(a.volumeRawMin)
}

// RawToPercent converts a raw level into a percentage of the limit
func (a *Amplifier) RawToPercent(raw int) float64 {
	span := a.VolumeRawLimit() - a.volumeRawMin
	if span <= 0 {
		return 0
	}
	return float64(raw-a.volumeRawMin) * 100 / float64(span)
}

// Volume returns the cached volume as a percentage of the limit
func (a *Amplifier) Volume() float64 {
	return a.RawToPercent(a.volumeRaw)
}

func (a *Amplifier) clampRaw(raw int) int {
	if raw < a.volumeRawMin {
		return a.volumeRawMin
	}
	if raw > a.volumeRawMax {
		return a.volumeRawMax
	}
	return raw
}

// SetVolumeRaw requests a raw volume, clamped to the limit. Nothing is sent
// unless the amplifier is on and the clamped level differs from the cache.
func (a *Amplifier) SetVolumeRaw(raw int) int {
	if !a.power.IsOn() {
		return a.volumeRaw
	}
	if limit := a.VolumeRawLimit(); raw > limit {
		raw = limit
	}
	if raw < a.volumeRawMin {
		raw = a.volumeRawMin
	}
	if raw == a.volumeRaw {
		return a.volumeRaw
	}

	setting := strconv.Itoa(raw)
	switch {
	case raw <= a.volumeRawMin:
		setting = "min"
	case raw >= a.volumeRawMax:
		setting = "max"
	}
	a.send("volume_" + setting)
	return raw
}

// SetVolume requests a volume as a percentage of the limit. It returns the
// requested percentage when a command was sent for it unchanged.
func (a *Amplifier) SetVolume(percent float64) float64 {
	before := a.volumeRaw
	raw := int(math.Round(a.PercentToRaw(percent)))
	got := a.SetVolumeRaw(raw)
	switch {
	case got == before:
		return a.Volume()
	case got != raw:
		return a.RawToPercent(got)
	}
	return percent
}

// SetVolumeDeferred sets the volume now if the amplifier is on, otherwise
// remembers it until power-up or until timeout passes
func (a *Amplifier) SetVolumeDeferred(percent float64, timeout time.Duration) float64 {
	if a.power.IsOn() {
		return a.SetVolume(percent)
	}
	a.setPending(&pendingSetting{kind: PendingVolume, percent: percent}, timeout)
	return percent
}

// VolumeUp steps the volume up one unit if below the limit
func (a *Amplifier) VolumeUp() bool {
	if !a.power.IsOn() || a.volumeRaw >= a.VolumeRawLimit() {
		return false
	}
	a.send("volume_up")
	return true
}

// VolumeDown steps the volume down one unit if above the minimum
func (a *Amplifier) VolumeDown() bool {
	if !a.power.IsOn() || a.volumeRaw <= a.volumeRawMin {
		return false
	}
	a.send("volume_down")
	return true
}

func (a *Amplifier) resolvePendingVolume() {
	p := a.pending[PendingVolume]
	if p == nil || !a.power.IsOn() {
		return
	}
	if int(math.Round(a.PercentToRaw(p.percent))) == a.volumeRaw {
		a.clearPending(PendingVolume)
	}
}
