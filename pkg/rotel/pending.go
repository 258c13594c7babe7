// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"fmt"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/loop"
)

// PendingKind identifies a setting held until the amplifier powers up
type PendingKind int

const (
	PendingVolume PendingKind = iota
	PendingSource
	PendingSpeakerA
	PendingSpeakerB
)

func (k PendingKind) String() string {
	switch k {
	case PendingVolume:
		return "volume"
	case PendingSource:
		return "source"
	case PendingSpeakerA:
		return "speaker_a"
	case PendingSpeakerB:
		return "speaker_b"
	default:
		return "unknown"
	}
}

type pendingSetting struct {
	kind    PendingKind
	percent float64
	source  string
	on      bool
	timer   loop.Timer
	expired bool
}

func (p *pendingSetting) value() string {
	switch p.kind {
	case PendingVolume:
		return fmt.Sprintf("%g", p.percent)
	case PendingSource:
		return p.source
	default:
		return fmt.Sprintf("%t", p.on)
	}
}

// setPending replaces any setting of the same kind. A non-positive timeout
// uses the configured default.
func (a *Amplifier) setPending(p *pendingSetting, timeout time.Duration) {
	if timeout <= 0 {
		timeout = a.opts.PendingTimeout
	}
	a.clearPending(p.kind)
	p.timer = a.sched.AfterFunc(timeout, func() { a.expirePending(p) })
	a.pending[p.kind] = p
	a.log.Debugf("# Pre-set %s %s for %s", p.kind, p.value(), timeout)
}

func (a *Amplifier) expirePending(p *pendingSetting) {
	if a.pending[p.kind] != p {
		return
	}
	// Power came on in time; the settle step applies it.
	if a.power.IsOn() {
		p.expired = true
		return
	}
	delete(a.pending, p.kind)
	a.log.Infof("# Pre-set %s change expired", p.kind)
}

// dropExpired discards settings whose deadline passed while the amplifier
// was on but before they could be applied
func (a *Amplifier) dropExpired() {
	for kind, p := range a.pending {
		if p.expired {
			delete(a.pending, kind)
			a.log.Infof("# Pre-set %s change expired", kind)
		}
	}
}

func (a *Amplifier) clearPending(kind PendingKind) {
	if p := a.pending[kind]; p != nil {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(a.pending, kind)
	}
}

func (a *Amplifier) takePending(kind PendingKind) *pendingSetting {
	p := a.pending[kind]
	a.clearPending(kind)
	return p
}

// Pending returns the settings waiting for power-up, keyed by kind
func (a *Amplifier) Pending() map[string]string {
	if len(a.pending) == 0 {
		return nil
	}
	out := make(map[string]string, len(a.pending))
	for kind, p := range a.pending {
		out[kind.String()] = p.value()
	}
	return out
}
