// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity int
		want      logrus.Level
	}{
		{-1, logrus.WarnLevel},
		{0, logrus.WarnLevel},
		{1, logrus.InfoLevel},
		{2, logrus.DebugLevel},
		{3, logrus.TraceLevel},
		{7, logrus.TraceLevel},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.verbosity); got != tt.want {
			t.Errorf("LevelFor(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := New(1, &buf)
	Component(l, "amp").Info("# Power on")
	Component(l, "net").Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=amp") || !strings.Contains(out, "Power on") {
		t.Errorf("missing info entry: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry logged at verbosity 1: %q", out)
	}
}

func TestVolumeReportThreshold(t *testing.T) {
	if VolumeReportThreshold(0) != 10 || VolumeReportThreshold(1) != 10 {
		t.Error("quiet verbosity should report every 10 units")
	}
	if VolumeReportThreshold(2) != 1 || VolumeReportThreshold(3) != 1 {
		t.Error("debug verbosity should report every unit")
	}
}
