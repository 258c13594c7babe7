// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// Sentinel terminates every command and every fixed-format response
	Sentinel = '!'

	// MaxFieldLength bounds the declared length of a length-prefixed field.
	// Larger values are not treated as a length prefix.
	MaxFieldLength = 255

	// MaxPartialSize bounds the unterminated tail kept between reads
	MaxPartialSize = 4096
)

// ErrNoWriter is returned by Send on a receive-only link
var ErrNoWriter = errors.New("link has no writer")

// fieldHeader matches the start of a length-prefixed response such as
// "display=040,<40 bytes>" or "product_version=005,V1.23". These responses
// are not sentinel-terminated and may contain the sentinel byte.
var fieldHeader = regexp.MustCompile(`^[\r\n]*(display|product_[a-z]+|[a-z]+_version)([012]?)=0*([0-9]+),`)

// Display holds the two lines of the front panel
type Display struct {
	Line1 string `json:"line1" cbor:"0,keyasint"`
	Line2 string `json:"line2" cbor:"1,keyasint"`
}

type fieldResult int

const (
	fieldNone fieldResult = iota
	fieldNeedMore
	fieldExtracted
)

// Link frames the amplifier's serial byte stream. Feed and Send must be
// called from the event loop.
type Link struct {
	w   io.Writer
	log *logrus.Entry

	buf     []byte
	display Display
	info    map[string]string
	stats   *Statistics

	frames   Bus[string]
	displays Bus[Display]
}

// NewLink creates a link writing commands to w. A nil w yields a
// receive-only link.
func NewLink(w io.Writer, log *logrus.Entry) *Link {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Link{
		w:     w,
		log:   log,
		info:  make(map[string]string),
		stats: NewStatistics(),
	}
}

// Send writes a single command followed by the sentinel. Empty commands are
// ignored.
func (l *Link) Send(command string) error {
	command = strings.TrimSpace(command)
	command = strings.TrimRight(command, string(Sentinel))
	if command == "" {
		return nil
	}
	if l.w == nil {
		return ErrNoWriter
	}

	data := []byte(command + string(Sentinel))
	l.log.Tracef("<< %s", data)
	if _, err := l.w.Write(data); err != nil {
		l.stats.sendErrors.Add(1)
		return fmt.Errorf("send %q: %w", command, err)
	}
	l.stats.sent(len(data))
	return nil
}

// Feed appends received bytes and publishes every complete frame in order
func (l *Link) Feed(data []byte) {
	l.buf = append(l.buf, data...)

	for len(l.buf) > 0 {
		switch l.extractField() {
		case fieldExtracted:
			continue
		case fieldNeedMore:
			return
		}

		i := bytes.IndexByte(l.buf, Sentinel)
		if i < 0 {
			break
		}
		raw := l.buf[:i+1]
		l.buf = l.buf[i+1:]
		l.stats.received(1, len(raw))

		frame := strings.TrimLeft(string(raw[:i]), "\r\n")
		if frame == "" {
			continue
		}
		l.log.Tracef(">> %q", raw)
		l.frames.Publish(frame)
	}

	if len(l.buf) > MaxPartialSize {
		l.log.Warnf("Discarding %d unterminated bytes", len(l.buf))
		l.buf = nil
	}
	if len(l.buf) == 0 {
		l.buf = nil
	}
}

// extractField removes a complete length-prefixed field from the front of
// the buffer
func (l *Link) extractField() fieldResult {
	m := fieldHeader.FindSubmatchIndex(l.buf)
	if m == nil {
		return fieldNone
	}

	length, err := strconv.Atoi(string(l.buf[m[6]:m[7]]))
	if err != nil || length == 0 || length > MaxFieldLength {
		return fieldNone
	}

	headerEnd := m[1]
	if len(l.buf)-headerEnd < length {
		return fieldNeedMore
	}

	label := string(l.buf[m[2]:m[3]])
	line := string(l.buf[m[4]:m[5]])
	payload := string(l.buf[headerEnd : headerEnd+length])
	total := headerEnd + length
	l.buf = l.buf[total:]
	l.stats.received(1, total)

	if label != "display" {
		l.log.Debugf("# Non-display text: %s=%q", label, payload)
		l.info[label] = strings.TrimSpace(payload)
		return fieldExtracted
	}

	switch line {
	case "1":
		l.display.Line1 = payload
	case "2":
		l.display.Line2 = payload
	default:
		l.display.Line1 = payload[:length/2]
		l.display.Line2 = payload[length/2:]
	}
	l.stats.displayUpdates.Add(1)
	l.log.Tracef("Display: %q", payload)
	l.displays.Publish(l.display)
	return fieldExtracted
}

// SubscribeFrames registers fn for every decoded frame
func (l *Link) SubscribeFrames(fn func(string)) func() {
	return l.frames.Subscribe(fn)
}

// SubscribeDisplay registers fn for every front panel update
func (l *Link) SubscribeDisplay(fn func(Display)) func() {
	return l.displays.Subscribe(fn)
}

// Display returns the most recent front panel text
func (l *Link) Display() Display {
	return l.display
}

// Info returns the product and version fields reported by the device
func (l *Link) Info() map[string]string {
	out := make(map[string]string, len(l.info))
	for k, v := range l.info {
		out[k] = v
	}
	return out
}

// Pending returns the number of buffered bytes not yet framed
func (l *Link) Pending() int {
	return len(l.buf)
}

// Stats returns the link traffic counters
func (l *Link) Stats() *Statistics {
	return l.stats
}
