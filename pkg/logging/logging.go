// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the logrus logger shared by every component.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LevelFor maps a -v count to a log level: none is warn, -v info,
// -vv debug, -vvv and above trace.
func LevelFor(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.WarnLevel
	case verbosity == 1:
		return logrus.InfoLevel
	case verbosity == 2:
		return logrus.DebugLevel
	}
	return logrus.TraceLevel
}

// New creates a logger writing to out (stderr when nil)
func New(verbosity int, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(LevelFor(verbosity))
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Component returns an entry tagged with the component name
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

// VolumeReportThreshold is the raw volume change needed before a volume
// frame is logged at info level.
func VolumeReportThreshold(verbosity int) int {
	if verbosity < 2 {
		return 10
	}
	return 1
}

// Discard returns an entry that drops everything
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
