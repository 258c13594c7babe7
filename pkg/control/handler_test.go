// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/loop"
	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type sendRecorder struct {
	sent []string
}

func (r *sendRecorder) Send(command string) error {
	r.sent = append(r.sent, command)
	return nil
}

func (r *sendRecorder) take() []string {
	s := r.sent
	r.sent = nil
	return s
}

type handlerHarness struct {
	h     *Handler
	amp   *rotel.Amplifier
	rec   *sendRecorder
	sched *loop.ManualScheduler
}

func newHandlerHarness(t *testing.T, limit int) *handlerHarness {
	t.Helper()
	rec := &sendRecorder{}
	sched := loop.NewManualScheduler()
	opts := rotel.DefaultOptions()
	opts.VolumeLimit = limit
	amp := rotel.NewAmplifier(rec, sched, quietLog(), opts)
	return &handlerHarness{
		h:     NewHandler(amp, sched, quietLog(), HandlerOptions{}),
		amp:   amp,
		rec:   rec,
		sched: sched,
	}
}

// powerUp settles the amplifier on cd, speaker A, raw volume 20, unmuted
func (hh *handlerHarness) powerUp() {
	for _, f := range []string{"power=on", "volume_max=096", "volume_min=000", "source=cd", "speaker=a", "volume=020", "mute=off"} {
		hh.amp.HandleFrame(f)
	}
	hh.sched.Advance(rotel.DefaultSettleDelay)
	hh.rec.take()
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseBoolean(t *testing.T) {
	tests := []struct {
		in    string
		value bool
		ok    bool
	}{
		{"on", true, true},
		{"TRUE", true, true},
		{"1", true, true},
		{"yes", true, true},
		{"off", false, true},
		{"false", false, true},
		{"0", false, true},
		{"No", false, true},
		{"maybe", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		value, ok := ParseBoolean(tt.in)
		if value != tt.value || ok != tt.ok {
			t.Errorf("ParseBoolean(%q) = %v, %v; want %v, %v", tt.in, value, ok, tt.value, tt.ok)
		}
	}
}

func TestHandlePoweredCommands(t *testing.T) {
	tests := []struct {
		line  string
		reply string
		sent  []string
	}{
		{"vol 0.5", "50", []string{"volume_28"}},
		{"volume 40", "40", []string{"volume_22"}},
		{"vol up", "21", []string{"volume_21"}},
		{"vol down", "19", []string{"volume_19"}},
		{"vol -5", "50", []string{"volume_50"}},
		{"vol 1.0", "100", []string{"volume_55"}},
		{"vol loud", "", nil},
		{"vol opt1 0.5", "50", []string{"opt1", "volume_28"}},
		{"mute on", "true", []string{"mute_on"}},
		{"mute off", "false", nil},
		{"mute", "false", nil},
		{"mute perhaps", "", nil},
		{"source xlr", "bal_xlr", []string{"bal_xlr"}},
		{"source cd", "cd", nil},
		{"source bluetooth", "", nil},
		{"opt2", "opt2", []string{"opt2"}},
		{"in tuner", "tuner", []string{"tuner"}},
		{"speakers b", "b", []string{"speaker_a", "speaker_b"}},
		{"speakers both", "both", []string{"speaker_b"}},
		{"speakers loud", "", nil},
		{"a off", "false", []string{"speaker_a"}},
		{"b on", "true", []string{"speaker_b"}},
		{"b what", "", nil},
		{"key play", "true", []string{"play"}},
		{"button Track-Fwd!", "false", nil},
		{"button track_fwd", "true", []string{"track_fwd"}},
		{"on", "true", nil},
		{"power", "true", nil},
		{"power off", "false", []string{"power_off"}},
		{"off", "false", []string{"power_off"}},
		{"frobnicate", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			hh := newHandlerHarness(t, 55)
			hh.powerUp()

			if got := hh.h.Handle(tt.line); got != tt.reply {
				t.Errorf("Handle(%q) = %q, want %q", tt.line, got, tt.reply)
			}
			if got := hh.rec.take(); !sameStrings(got, tt.sent) {
				t.Errorf("Handle(%q) sent %q, want %q", tt.line, got, tt.sent)
			}
		})
	}
}

func TestHandleVolumeQuery(t *testing.T) {
	hh := newHandlerHarness(t, 0)
	hh.powerUp()
	hh.amp.HandleFrame("volume=045")

	for _, line := range []string{"vol 0.0", "vol -", "vol nil", "volume"} {
		if got := hh.h.Handle(line); got != "46.875" {
			t.Errorf("Handle(%q) = %q, want 46.875", line, got)
		}
	}
	if got := hh.h.Handle("? vol"); got != "47" {
		t.Errorf("? vol = %q, want 47", got)
	}
	if got := hh.rec.take(); len(got) != 0 {
		t.Errorf("volume query sent %q", got)
	}
}

func TestHandleWhilePoweredOff(t *testing.T) {
	hh := newHandlerHarness(t, 55)
	hh.amp.HandleFrame("power=standby")
	hh.rec.take()

	if got := hh.h.Handle("in opt1"); got != "opt1" {
		t.Errorf("in opt1 = %q", got)
	}
	if got := hh.rec.take(); !sameStrings(got, []string{"power_on"}) {
		t.Errorf("in opt1 sent %q, want [power_on]", got)
	}

	if got := hh.h.Handle("vol 0.5"); got != "50" {
		t.Errorf("vol 0.5 = %q, want 50", got)
	}
	if got := hh.h.Handle("a on"); got != "true" {
		t.Errorf("a on = %q, want true", got)
	}
	if got := hh.rec.take(); len(got) != 0 {
		t.Errorf("deferred settings sent %q while off", got)
	}

	pending := hh.amp.Pending()
	if pending["source"] != "opt1" || pending["volume"] != "50" || pending["speaker_a"] != "true" {
		t.Errorf("Pending() = %v", pending)
	}

	if got := hh.h.Handle("mute on"); got != "false" {
		t.Errorf("mute on while off = %q, want false", got)
	}
	if got := hh.h.Handle("key play"); got != "false" {
		t.Errorf("key play while off = %q, want false", got)
	}
	if got := hh.h.Handle("in bluetooth"); got != "" {
		t.Errorf("in bluetooth = %q, want empty", got)
	}
	if got := hh.rec.take(); len(got) != 0 {
		t.Errorf("sent %q while off", got)
	}
}

func TestHandleQueries(t *testing.T) {
	hh := newHandlerHarness(t, 55)

	if got := hh.h.Handle("? power"); got != "off" {
		t.Errorf("? power = %q before power-up", got)
	}
	if got := hh.h.Handle("? cd"); got != "false" {
		t.Errorf("? cd = %q while off", got)
	}

	hh.powerUp()
	hh.amp.HandleFrame("speaker=a_b")

	tests := []struct {
		query, want string
	}{
		{"? power", "on"},
		{"? on", "true"},
		{"? vol", "36"},
		{"? raw", "20"},
		{"? limit", "55"},
		{"? source", "cd"},
		{"? input", "cd"},
		{"? speakers", "both"},
		{"? a", "true"},
		{"? b", "true"},
		{"? mute", "false"},
		{"? signal", "true"},
		{"? freq", "0"},
		{"? cd", "true"},
		{"? CD", "true"},
		{"? opt1", "false"},
		{"? nonsense", "false"},
	}
	for _, tt := range tests {
		if got := hh.h.Handle(tt.query); got != tt.want {
			t.Errorf("Handle(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestHandleMaybe(t *testing.T) {
	tests := []struct {
		name   string
		volume string
		line   string
		reply  string
		sent   []string
	}{
		{"quiet", "volume=008", "maybe", "false", []string{"power_off"}},
		{"quiet on listed source", "volume=008", "maybe tuner cd", "false", []string{"power_off"}},
		{"quiet on other source", "volume=008", "maybe tuner", "true", nil},
		{"loud", "volume=030", "maybe", "true", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hh := newHandlerHarness(t, 55)
			hh.powerUp()
			hh.amp.HandleFrame(tt.volume)
			hh.rec.take()

			if got := hh.h.Handle(tt.line); got != tt.reply {
				t.Errorf("Handle(%q) = %q, want %q", tt.line, got, tt.reply)
			}
			if got := hh.rec.take(); !sameStrings(got, tt.sent) {
				t.Errorf("sent %q, want %q", got, tt.sent)
			}
		})
	}
}

func TestHandleSleep(t *testing.T) {
	t.Run("expires without activity", func(t *testing.T) {
		hh := newHandlerHarness(t, 55)
		hh.powerUp()

		if got := hh.h.Handle("sleep"); got != "30" {
			t.Errorf("sleep = %q, want 30", got)
		}
		hh.sched.Advance(29 * time.Second)
		if got := hh.rec.take(); len(got) != 0 {
			t.Fatalf("powered off early: %q", got)
		}
		hh.sched.Advance(time.Second)
		if got := hh.rec.take(); !sameStrings(got, []string{"power_off"}) {
			t.Errorf("sent %q, want [power_off]", got)
		}
	})

	t.Run("cancelled by command", func(t *testing.T) {
		hh := newHandlerHarness(t, 55)
		hh.powerUp()

		if got := hh.h.Handle("sleep 2.5"); got != "2.5" {
			t.Errorf("sleep 2.5 = %q", got)
		}
		hh.h.Handle("vol 0.5")
		hh.rec.take()
		hh.sched.Advance(3 * time.Second)
		if got := hh.rec.take(); len(got) != 0 {
			t.Errorf("sleep fired after activity: %q", got)
		}
	})

	t.Run("cancelled by device activity", func(t *testing.T) {
		hh := newHandlerHarness(t, 55)
		hh.powerUp()

		hh.h.Handle("sleep 10")
		hh.amp.HandleFrame("volume=021")
		hh.sched.Advance(10 * time.Second)
		if got := hh.rec.take(); len(got) != 0 {
			t.Errorf("sleep fired after device activity: %q", got)
		}
	})

	t.Run("replaced by a new sleep", func(t *testing.T) {
		hh := newHandlerHarness(t, 55)
		hh.powerUp()

		hh.h.Handle("sleep 5")
		hh.h.Handle("sleep 20")
		hh.sched.Advance(10 * time.Second)
		if got := hh.rec.take(); len(got) != 0 {
			t.Errorf("replaced sleep fired: %q", got)
		}
		if hh.sched.Pending() != 1 {
			t.Errorf("Pending() = %d, want 1", hh.sched.Pending())
		}
	})
}

func TestReplacedSleepOnEventLoop(t *testing.T) {
	events := loop.New(16, quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		events.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	rec := &sendRecorder{}
	err := events.Do(ctx, func() {
		opts := rotel.DefaultOptions()
		opts.SettleDelay = time.Millisecond
		amp := rotel.NewAmplifier(rec, events, quietLog(), opts)
		h := NewHandler(amp, events, quietLog(), HandlerOptions{})
		for _, f := range []string{"power=on", "volume_max=096", "volume_min=000", "source=cd", "speaker=a", "volume=020", "mute=off"} {
			amp.HandleFrame(f)
		}
		h.Handle("sleep 0.02")
		// The first sleep timer fires and queues behind this task
		time.Sleep(60 * time.Millisecond)
		h.Handle("sleep 10")
		rec.take()
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	var sent []string
	if err := events.Do(ctx, func() { sent = rec.take() }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	for _, c := range sent {
		if c == "power_off" {
			t.Fatalf("replaced sleep powered off: sent %q", sent)
		}
	}
}

func TestHandleSpeakersUnknownState(t *testing.T) {
	hh := newHandlerHarness(t, 55)
	hh.amp.HandleFrame("power=on")
	hh.rec.take()

	if got := hh.h.Handle("speakers ab"); got != "none" {
		t.Errorf("speakers ab = %q, want none", got)
	}
	for _, c := range hh.rec.take() {
		if c == "speaker_a" || c == "speaker_b" {
			t.Errorf("toggled %q without a known state", c)
		}
	}
}
