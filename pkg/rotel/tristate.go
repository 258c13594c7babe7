// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

// TriState is a boolean that may not have been reported by the device yet
type TriState uint8

const (
	Unknown TriState = iota
	Off
	On
)

// TriStateOf converts a known boolean
func TriStateOf(b bool) TriState {
	if b {
		return On
	}
	return Off
}

// Known reports whether the device has confirmed a value
func (t TriState) Known() bool { return t != Unknown }

// IsOn is true only for a confirmed On
func (t TriState) IsOn() bool { return t == On }

func (t TriState) String() string {
	switch t {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unknown"
	}
}
