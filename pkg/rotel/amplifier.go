// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"time"

	"github.com/Thermoquad/rotelstat/pkg/loop"
	"github.com/sirupsen/logrus"
)

const (
	DefaultVolumeRawMin   = 0
	DefaultVolumeRawMax   = 96
	DefaultSettleDelay    = 4 * time.Second
	DefaultPendingTimeout = 8 * time.Second
)

// Sender writes one command to the device
type Sender interface {
	Send(command string) error
}

// Options configures an Amplifier
type Options struct {
	// VolumeLimit caps the raw volume; zero or less means the device maximum
	VolumeLimit           int
	AllowUnknownSources   bool
	UnmuteOnPowerUp       bool
	UpdateDisplay         bool
	VolumeReportThreshold int
	SettleDelay           time.Duration
	PendingTimeout        time.Duration
	Catalog               *SourceCatalog
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		UnmuteOnPowerUp:       true,
		VolumeReportThreshold: 1,
		SettleDelay:           DefaultSettleDelay,
		PendingTimeout:        DefaultPendingTimeout,
	}
}

// Amplifier is the shadow of the device state. The cache changes only when
// the device confirms a value; setters send commands and return. All methods
// must be called from the event loop that owns the scheduler.
type Amplifier struct {
	link    Sender
	sched   loop.Scheduler
	log     *logrus.Entry
	opts    Options
	catalog *SourceCatalog

	power        TriState
	source       string
	volumeRaw    int
	volumeRawMin int
	volumeRawMax int
	minKnown     bool
	maxKnown     bool
	volumeLimit  int
	speakerA     TriState
	speakerB     TriState
	mute         TriState
	frequency    int
	inactive     bool
	display      Display

	pending      map[PendingKind]*pendingSetting
	settle       loop.Timer
	lastReported int
	reported     bool

	changes Bus[Snapshot]
}

// observable is the part of the state whose change triggers a notification
type observable struct {
	power     TriState
	source    string
	volumeRaw int
	speakerA  TriState
	speakerB  TriState
	mute      TriState
	frequency int
}

// NewAmplifier creates an amplifier shadow with every attribute unknown
func NewAmplifier(link Sender, sched loop.Scheduler, log *logrus.Entry, opts Options) *Amplifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = DefaultPendingTimeout
	}
	if opts.VolumeReportThreshold <= 0 {
		opts.VolumeReportThreshold = 1
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	a := &Amplifier{
		link:         link,
		sched:        sched,
		log:          log,
		opts:         opts,
		catalog:      catalog,
		volumeRawMin: DefaultVolumeRawMin,
		volumeRawMax: DefaultVolumeRawMax,
		inactive:     true,
		pending:      make(map[PendingKind]*pendingSetting),
	}
	a.SetVolumeRawLimit(opts.VolumeLimit)
	return a
}

// Start asks the device for its power state
func (a *Amplifier) Start() {
	a.send("get_current_power")
}

// Subscribe registers fn for state change notifications
func (a *Amplifier) Subscribe(fn func(Snapshot)) func() {
	return a.changes.Subscribe(fn)
}

// Catalog returns the source catalog in use
func (a *Amplifier) Catalog() *SourceCatalog {
	return a.catalog
}

func (a *Amplifier) send(command string) {
	if err := a.link.Send(command); err != nil {
		a.log.Errorf("Transport error: %v", err)
	}
}

func (a *Amplifier) observe() observable {
	return observable{
		power:     a.power,
		source:    a.source,
		volumeRaw: a.volumeRaw,
		speakerA:  a.speakerA,
		speakerB:  a.speakerB,
		mute:      a.mute,
		frequency: a.frequency,
	}
}

func (a *Amplifier) notify() {
	a.changes.Publish(a.Snapshot())
}

// HandleFrame updates the cache from one device frame. At most one
// notification is published per frame.
func (a *Amplifier) HandleFrame(frame string) {
	text := Sanitize(frame)
	if text == "" {
		return
	}

	a.inactive = false
	before := a.observe()

	msg := ParseMessage(text)
	powerEvent := a.apply(msg)

	// Anything other than a power report while we believe the amplifier is
	// off means our idea of the power state is stale.
	if !powerEvent && !a.power.IsOn() {
		a.send("get_current_power")
	}

	if a.observe() != before {
		a.notify()
	}
}

// apply updates the cache and reports whether msg settles the power state
func (a *Amplifier) apply(msg Message) bool {
	switch msg.Kind {
	case MsgPowerOn:
		a.setPower(On)
		return true
	case MsgPoweringUp:
		a.log.Info("# Powering up")
		return true
	case MsgPowerUpPending:
		a.log.Debug("# About to power up")
	case MsgPowerOff:
		a.setPower(Off)
		return true

	case MsgMute:
		a.mute = TriStateOf(msg.On)
		a.log.Infof("# Mute: %s", a.mute)

	case MsgVolume:
		if msg.Malformed {
			a.log.Warnf("! Unparseable volume: %q", msg.Raw)
			break
		}
		switch msg.Bound {
		case VolumeAtMin:
			a.volumeRaw = a.volumeRawMin
		case VolumeAtMax:
			a.volumeRaw = a.volumeRawMax
		default:
			a.volumeRaw = a.clampRaw(msg.Int)
		}
		a.reportVolume()
		a.resolvePendingVolume()

	case MsgVolumeMin:
		v := msg.Int
		if msg.Malformed || v < 0 || v > a.volumeRawMax {
			v = DefaultVolumeRawMin
		}
		a.volumeRawMin = v
		a.minKnown = true
		a.volumeRaw = a.clampRaw(a.volumeRaw)
		a.log.Debugf("# Volume range minimum: %d", v)

	case MsgVolumeMax:
		v := msg.Int
		if msg.Malformed || v <= a.volumeRawMin {
			v = DefaultVolumeRawMax
		}
		a.volumeRawMax = v
		a.maxKnown = true
		a.volumeRaw = a.clampRaw(a.volumeRaw)
		a.log.Debugf("# Volume range maximum: %d", v)

	case MsgSource:
		a.applySource(msg.Value)

	case MsgSpeaker:
		if msg.Malformed {
			a.log.Warnf("! Unknown speaker setting: %q", msg.Value)
			return true
		}
		a.speakerA = TriStateOf(msg.Speakers.A())
		a.speakerB = TriStateOf(msg.Speakers.B())
		a.log.Infof("# Speakers: %s", msg.Speakers)
		a.resolvePendingSpeakers()

	case MsgTone:
		a.log.Infof("# Tone: %s", msg.Raw)
	case MsgPlayStatus:
		a.log.Infof("# Play status: %s", msg.Value)
	case MsgFrequency:
		a.frequency = msg.Frequency
		a.log.Infof("# Frequency: %d", a.frequency)
	case MsgPCUSBClass:
		a.log.Debugf("# PC-USB class: %s", msg.Value)
		return true
	case MsgDisplayUpdate:
		a.log.Debugf("# Display update mode: %s", msg.Value)
		return true
	case MsgDimmer:
		a.log.Debugf("# Dimmer: %s", msg.Raw)

	default:
		a.log.Warnf("! Unhandled message: %q", msg.Raw)
		return true
	}
	return false
}

func (a *Amplifier) applySource(value string) {
	previous := a.source
	if value == "" {
		return
	}
	if !a.catalog.IsKnown(value) {
		a.log.Warnf("! Unknown source setting: %q", value)
		if !a.opts.AllowUnknownSources {
			return
		}
	}
	a.source = value
	a.log.Infof("# Source: %s", value)

	if previous == "" && a.power.IsOn() && a.catalog.IsDigital(a.source) {
		a.send("get_current_freq")
	}
	if p := a.pending[PendingSource]; p != nil && p.source == a.source {
		a.clearPending(PendingSource)
	}
}

func (a *Amplifier) reportVolume() {
	if a.reported {
		diff := a.volumeRaw - a.lastReported
		if diff < 0 {
			diff = -diff
		}
		if diff < a.opts.VolumeReportThreshold {
			return
		}
	}
	a.reported = true
	a.lastReported = a.volumeRaw
	a.log.Infof("# Volume: %d (%.0f%%)", a.volumeRaw, a.Volume())
}

func (a *Amplifier) setPower(state TriState) {
	previous := a.power
	a.power = state

	switch {
	case state == On && previous != On:
		a.onPowerUp()
	case state == Off && previous == On:
		a.onPowerDown()
	case state == Off && previous == Unknown:
		a.log.Info("# Power off")
	}
}

// onPowerUp queries everything that may have changed while the amplifier
// was off and schedules the settle step.
func (a *Amplifier) onPowerUp() {
	a.log.Info("# Power on")

	if a.opts.UpdateDisplay {
		a.send("display_update_auto")
	} else {
		a.send("display_update_manual")
	}
	if !a.minKnown || !a.maxKnown {
		a.send("get_volume_max")
		a.send("get_volume_min")
	}
	a.send("get_current_source")
	a.send("get_current_speaker")
	a.send("get_volume")
	a.send("get_mute_status")

	if p := a.pending[PendingVolume]; p != nil {
		a.SetVolume(p.percent)
	}
	if p := a.pending[PendingSource]; p != nil {
		a.SetSource(p.source)
	}

	if a.settle != nil {
		a.settle.Stop()
	}
	a.settle = a.sched.AfterFunc(a.opts.SettleDelay, a.afterPowerUp)
}

// afterPowerUp applies whatever is still pending once the amplifier has
// had time to report its state.
func (a *Amplifier) afterPowerUp() {
	a.settle = nil
	if !a.power.IsOn() {
		return
	}
	a.notify()

	if p := a.takePending(PendingVolume); p != nil {
		a.log.Infof("# Applying pre-set volume %.0f%%", p.percent)
		a.SetVolume(p.percent)
	}
	if p := a.takePending(PendingSource); p != nil {
		a.log.Infof("# Applying pre-set source %s", p.source)
		a.SetSource(p.source)
	}
	if p := a.takePending(PendingSpeakerA); p != nil {
		a.SetSpeakerA(p.on)
	}
	if p := a.takePending(PendingSpeakerB); p != nil {
		a.SetSpeakerB(p.on)
	}
	if a.opts.UnmuteOnPowerUp && a.mute.IsOn() {
		a.SetMute(false)
	}
}

func (a *Amplifier) onPowerDown() {
	a.log.Info("# Power off")
	if a.settle != nil {
		a.settle.Stop()
		a.settle = nil
	}
	a.dropExpired()
}

// HandleDisplay records the front panel text
func (a *Amplifier) HandleDisplay(d Display) {
	a.display = d
	if a.opts.UpdateDisplay {
		a.notify()
	}
}

// Power returns the cached power state
func (a *Amplifier) Power() TriState { return a.power }

// Source returns the cached source, or "" if unknown
func (a *Amplifier) Source() string { return a.source }

// Mute returns the cached mute state
func (a *Amplifier) Mute() TriState { return a.mute }

// SpeakerA returns the cached state of output A
func (a *Amplifier) SpeakerA() TriState { return a.speakerA }

// SpeakerB returns the cached state of output B
func (a *Amplifier) SpeakerB() TriState { return a.speakerB }

// Speakers returns the enabled outputs
func (a *Amplifier) Speakers() SpeakerSet {
	var s SpeakerSet
	if a.speakerA.IsOn() {
		s |= SpeakersA
	}
	if a.speakerB.IsOn() {
		s |= SpeakersB
	}
	return s
}

// Frequency returns the digital input sample rate in Hz, 0 if none
func (a *Amplifier) Frequency() int { return a.frequency }

// Display returns the last front panel text
func (a *Amplifier) Display() Display { return a.display }

// Inactive reports whether nothing has happened since the flag was set
func (a *Amplifier) Inactive() bool { return a.inactive }

// SetInactive sets the inactivity flag; any device frame clears it
func (a *Amplifier) SetInactive(v bool) { a.inactive = v }

// HasDigitalSignal reports a powered amplifier locked onto a digital input
func (a *Amplifier) HasDigitalSignal() bool {
	return a.power.IsOn() && a.catalog.IsDigital(a.source) && a.frequency > 0
}

// HasAnalogSignal reports a powered amplifier on a known analog input
func (a *Amplifier) HasAnalogSignal() bool {
	return a.power.IsOn() && a.catalog.IsKnown(a.source) && !a.catalog.IsDigital(a.source)
}

// HasSignal reports either kind of signal
func (a *Amplifier) HasSignal() bool {
	return a.HasDigitalSignal() || a.HasAnalogSignal()
}
