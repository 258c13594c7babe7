// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type linkRecorder struct {
	frames   []string
	displays []Display
}

func newTestLink(w io.Writer) (*Link, *linkRecorder) {
	l := NewLink(w, quietLog())
	rec := &linkRecorder{}
	l.SubscribeFrames(func(f string) { rec.frames = append(rec.frames, f) })
	l.SubscribeDisplay(func(d Display) { rec.displays = append(rec.displays, d) })
	return l, rec
}

func equalStrings(a, b []string) bool {
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

func TestLinkFraming(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    []string
		partial int
	}{
		{
			name:   "single frame",
			chunks: []string{"power=on!"},
			want:   []string{"power=on"},
		},
		{
			name:   "several frames in one chunk",
			chunks: []string{"power=on!volume=42!mute=off!"},
			want:   []string{"power=on", "volume=42", "mute=off"},
		},
		{
			name:   "frame split across chunks",
			chunks: []string{"vol", "ume=4", "2!sou", "rce=cd!"},
			want:   []string{"volume=42", "source=cd"},
		},
		{
			name:    "trailing fragment retained",
			chunks:  []string{"volume=42!source=c"},
			want:    []string{"volume=42"},
			partial: len("source=c"),
		},
		{
			name:   "empty frames dropped",
			chunks: []string{"!!\r\n!power=on!"},
			want:   []string{"power=on"},
		},
		{
			name:   "leading newlines stripped",
			chunks: []string{"\r\nvolume=10!"},
			want:   []string{"volume=10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rec := newTestLink(nil)
			for _, c := range tt.chunks {
				l.Feed([]byte(c))
			}
			if !equalStrings(rec.frames, tt.want) {
				t.Errorf("frames = %q, want %q", rec.frames, tt.want)
			}
			if l.Pending() != tt.partial {
				t.Errorf("Pending() = %d, want %d", l.Pending(), tt.partial)
			}
		})
	}
}

func TestLinkDisplay(t *testing.T) {
	t.Run("full display split in half", func(t *testing.T) {
		l, rec := newTestLink(nil)
		l.Feed([]byte("display=010,HELLOWORLDvolume=42!"))

		if len(rec.displays) != 1 {
			t.Fatalf("got %d display updates, want 1", len(rec.displays))
		}
		want := Display{Line1: "HELLO", Line2: "WORLD"}
		if rec.displays[0] != want {
			t.Errorf("display = %+v, want %+v", rec.displays[0], want)
		}
		if !equalStrings(rec.frames, []string{"volume=42"}) {
			t.Errorf("frames = %q, want [volume=42]", rec.frames)
		}
	})

	t.Run("individual lines", func(t *testing.T) {
		l, _ := newTestLink(nil)
		l.Feed([]byte("display1=003,CD display2=004,44.1"))
		want := Display{Line1: "CD ", Line2: "44.1"}
		if l.Display() != want {
			t.Errorf("display = %+v, want %+v", l.Display(), want)
		}
	})

	t.Run("payload containing sentinel", func(t *testing.T) {
		l, rec := newTestLink(nil)
		l.Feed([]byte("display=006,HI!YO!power=on!"))
		if l.Display().Line1 != "HI!" || l.Display().Line2 != "YO!" {
			t.Errorf("display = %+v", l.Display())
		}
		if !equalStrings(rec.frames, []string{"power=on"}) {
			t.Errorf("frames = %q, want [power=on]", rec.frames)
		}
	})

	t.Run("truncated payload deferred", func(t *testing.T) {
		l, rec := newTestLink(nil)
		l.Feed([]byte("display=010,HEL!"))
		if len(rec.displays) != 0 || len(rec.frames) != 0 {
			t.Fatalf("published before payload complete: displays=%v frames=%q", rec.displays, rec.frames)
		}
		l.Feed([]byte("LOWORLmute=on!"))
		want := Display{Line1: "HEL!L", Line2: "OWORL"}
		if len(rec.displays) != 1 || rec.displays[0] != want {
			t.Errorf("displays = %+v, want [%+v]", rec.displays, want)
		}
		if !equalStrings(rec.frames, []string{"mute=on"}) {
			t.Errorf("frames = %q, want [mute=on]", rec.frames)
		}
	})

	t.Run("zero length is not a field", func(t *testing.T) {
		l, rec := newTestLink(nil)
		l.Feed([]byte("display=000,!"))
		if len(rec.displays) != 0 {
			t.Errorf("zero-length display published: %+v", rec.displays)
		}
		if !equalStrings(rec.frames, []string{"display=000,"}) {
			t.Errorf("frames = %q", rec.frames)
		}
	})

	t.Run("product info captured", func(t *testing.T) {
		l, rec := newTestLink(nil)
		l.Feed([]byte("product_type=007,RA-1570product_version=004,1.53power=on!"))
		info := l.Info()
		if info["product_type"] != "RA-1570" || info["product_version"] != "1.53" {
			t.Errorf("info = %v", info)
		}
		if len(rec.displays) != 0 {
			t.Errorf("product fields published as display: %+v", rec.displays)
		}
		if !equalStrings(rec.frames, []string{"power=on"}) {
			t.Errorf("frames = %q", rec.frames)
		}
	})
}

func TestLinkCounters(t *testing.T) {
	var out bytes.Buffer
	l, _ := newTestLink(&out)

	l.Feed([]byte("power=on!volume=42!display=004,ABCD"))
	if err := l.Send("get_volume"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := l.Send("  "); err != nil {
		t.Fatalf("Send empty: %v", err)
	}

	if out.String() != "get_volume!" {
		t.Errorf("wrote %q, want %q", out.String(), "get_volume!")
	}

	s := l.Stats().Snapshot()
	if s.MessagesReceived != 3 {
		t.Errorf("MessagesReceived = %d, want 3", s.MessagesReceived)
	}
	if s.BytesReceived != uint64(len("power=on!volume=42!display=004,ABCD")) {
		t.Errorf("BytesReceived = %d", s.BytesReceived)
	}
	if s.MessagesSent != 1 || s.BytesSent != uint64(len("get_volume!")) {
		t.Errorf("sent = %d msgs / %d bytes", s.MessagesSent, s.BytesSent)
	}
	if s.DisplayUpdates != 1 {
		t.Errorf("DisplayUpdates = %d, want 1", s.DisplayUpdates)
	}

	l.Stats().Reset()
	if s := l.Stats().Snapshot(); s.MessagesReceived != 0 || s.BytesSent != 0 {
		t.Errorf("counters not reset: %+v", s)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("port gone") }

func TestLinkSendErrors(t *testing.T) {
	l, _ := newTestLink(nil)
	if err := l.Send("power_on"); !errors.Is(err, ErrNoWriter) {
		t.Errorf("Send on receive-only link = %v, want ErrNoWriter", err)
	}

	l, _ = newTestLink(failingWriter{})
	if err := l.Send("power_on"); err == nil {
		t.Error("Send with failing writer returned nil")
	}
	if l.Stats().Snapshot().SendErrors != 1 {
		t.Error("send error not counted")
	}
}

func TestLinkDiscardsRunawayPartial(t *testing.T) {
	l, _ := newTestLink(nil)
	l.Feed(bytes.Repeat([]byte("x"), MaxPartialSize+1))
	if l.Pending() != 0 {
		t.Errorf("Pending() = %d after overflow, want 0", l.Pending())
	}
}
