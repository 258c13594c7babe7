// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control implements the line-oriented command protocol used by
// network clients to drive the amplifier.
package control

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/loop"
	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSleep          = 30 * time.Second
	DefaultMaybeThreshold = 10
)

// HandlerOptions tunes command behaviour
type HandlerOptions struct {
	// PendingTimeout is how long settings requested while the amplifier is
	// off are kept; zero uses the amplifier default
	PendingTimeout time.Duration
	SleepDefault   time.Duration
	// MaybeThreshold is the raw volume at or below which "maybe" powers off
	MaybeThreshold int
}

// Handler executes one command line against the amplifier. It must run on
// the event loop that owns the amplifier.
type Handler struct {
	amp   *rotel.Amplifier
	sched loop.Scheduler
	log   *logrus.Entry
	opts  HandlerOptions
	sleep loop.Timer
}

var buttonChars = regexp.MustCompile(`[^a-z0-9_]`)

// NewHandler creates a command handler
func NewHandler(amp *rotel.Amplifier, sched loop.Scheduler, log *logrus.Entry, opts HandlerOptions) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.SleepDefault <= 0 {
		opts.SleepDefault = DefaultSleep
	}
	if opts.MaybeThreshold <= 0 {
		opts.MaybeThreshold = DefaultMaybeThreshold
	}
	return &Handler{amp: amp, sched: sched, log: log, opts: opts}
}

// ParseBoolean accepts on/off, true/false, 1/0 and yes/no
func ParseBoolean(s string) (value bool, ok bool) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, true
	case "off", "false", "0", "no":
		return false, true
	}
	return false, false
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func arg(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// Handle executes a whitespace-normalized command line and returns the reply
func (h *Handler) Handle(line string) string {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return ""
	}
	a := h.amp

	switch fields[0] {
	case "wake", "on":
		a.SetInactive(false)
		return formatBool(a.SetPower(true))

	case "off", "standby":
		a.SetInactive(false)
		return formatBool(a.SetPower(false))

	case "power":
		a.SetInactive(false)
		if len(fields) < 2 {
			return formatBool(a.Power().IsOn())
		}
		on, ok := ParseBoolean(fields[1])
		if !ok {
			return ""
		}
		return formatBool(a.SetPower(on))

	case "in", "input":
		a.SetInactive(false)
		src, ok := a.Catalog().Resolve(arg(fields, 1))
		if !ok {
			return ""
		}
		a.SetPower(true)
		return a.SetSourceDeferred(src, h.opts.PendingTimeout)

	case "source":
		a.SetInactive(false)
		if _, ok := a.Catalog().Resolve(arg(fields, 1)); !ok {
			return ""
		}
		return a.SetSourceDeferred(fields[1], h.opts.PendingTimeout)

	case "vol", "volume":
		a.SetInactive(false)
		return h.volume(fields)

	case "maybe":
		if a.Power().IsOn() && a.VolumeRaw() <= h.opts.MaybeThreshold &&
			(len(fields) == 1 || contains(fields[1:], a.Source())) {
			h.log.Info("# Low volume, powering off")
			return formatBool(a.SetPower(false))
		}
		return formatBool(a.Power().IsOn())

	case "sleep":
		return h.startSleep(arg(fields, 1))

	case "mute":
		if len(fields) < 2 {
			return formatBool(a.Mute().IsOn())
		}
		on, ok := ParseBoolean(fields[1])
		if !ok {
			return ""
		}
		return formatBool(a.SetMute(on))

	case "speakers":
		set, ok := rotel.ParseSpeakerSet(arg(fields, 1))
		if !ok {
			return ""
		}
		return a.SetSpeakers(set).String()

	case "a", "b":
		on, ok := ParseBoolean(arg(fields, 1))
		if !ok {
			return ""
		}
		if fields[0] == "a" {
			return formatBool(a.SetSpeakerADeferred(on, h.opts.PendingTimeout))
		}
		return formatBool(a.SetSpeakerBDeferred(on, h.opts.PendingTimeout))

	case "key", "button":
		button := buttonChars.ReplaceAllString(arg(fields, 1), "")
		if button == "" {
			return ""
		}
		return formatBool(a.SendButton(button))

	case "?":
		return h.query(arg(fields, 1))
	}

	if src, ok := a.Catalog().Resolve(fields[0]); ok {
		a.SetInactive(false)
		return a.SetSourceDeferred(src, h.opts.PendingTimeout)
	}
	h.log.Debugf("Unknown command %q", line)
	return ""
}

func (h *Handler) volume(fields []string) string {
	a := h.amp
	value := ""
	switch {
	case len(fields) == 2:
		value = fields[1]
	case len(fields) >= 3:
		a.SetSource(fields[1])
		value = fields[2]
	}

	switch value {
	case "up":
		return strconv.Itoa(a.SetVolumeRaw(a.VolumeRaw() + 1))
	case "down":
		return strconv.Itoa(a.SetVolumeRaw(a.VolumeRaw() - 1))
	case "0.0", "", "nil", "-":
		return formatFloat(a.Volume())
	case "1.0":
		return formatFloat(a.SetVolume(100))
	}

	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	if strings.HasPrefix(value, "-") {
		raw := int(math.Round(float64(a.VolumeRawLimit()) + v))
		return strconv.Itoa(a.SetVolumeRaw(raw))
	}
	if v < 1.0 {
		v *= 100
	}
	return formatFloat(a.SetVolumeDeferred(v, h.opts.PendingTimeout))
}

func (h *Handler) startSleep(value string) string {
	d := h.opts.SleepDefault
	if value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 && !math.IsInf(secs, 0) {
			d = time.Duration(secs * float64(time.Second))
		}
	}

	h.amp.SetInactive(true)
	if h.sleep != nil {
		h.sleep.Stop()
	}
	h.sleep = h.sched.AfterFunc(d, func() {
		h.sleep = nil
		if h.amp.Inactive() && h.amp.Power().IsOn() {
			h.log.Info("! Sleep timer expired without activity, power off")
			h.amp.SetPower(false)
		}
	})
	return formatFloat(d.Seconds())
}

func (h *Handler) query(attr string) string {
	a := h.amp
	switch attr {
	case "power":
		if a.Power().IsOn() {
			return "on"
		}
		return "off"
	case "on":
		return formatBool(a.Power().IsOn())
	case "vol", "volume":
		return strconv.Itoa(int(math.Round(a.Volume())))
	case "raw":
		return strconv.Itoa(a.VolumeRaw())
	case "limit":
		return strconv.Itoa(a.VolumeRawLimit())
	case "in", "input", "source":
		return a.Source()
	case "speakers":
		return a.Speakers().String()
	case "a":
		return formatBool(a.SpeakerA().IsOn())
	case "b":
		return formatBool(a.SpeakerB().IsOn())
	case "mute", "muted":
		return formatBool(a.Mute().IsOn())
	case "signal":
		return formatBool(a.HasSignal())
	case "freq":
		return strconv.Itoa(a.Frequency())
	case "display":
		d := a.Display()
		return strings.TrimSpace(d.Line1) + " | " + strings.TrimSpace(d.Line2)
	}

	src, ok := a.Catalog().Resolve(attr)
	return formatBool(ok && a.Power().IsOn() && a.Source() == src)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
