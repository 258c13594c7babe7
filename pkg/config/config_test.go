// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:65015" || cfg.BaudRate != 115200 || cfg.VolumeLimit != 55 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.SingleRequest || !cfg.UnmuteOnPowerUp {
		t.Errorf("request-per-connection and unmute should default on")
	}
	if cfg.SettleDelay.Std() != 4*time.Second || cfg.PendingTimeout.Std() != 8*time.Second {
		t.Errorf("settle %v pending %v", cfg.SettleDelay.Std(), cfg.PendingTimeout.Std())
	}
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{`"4s"`, 4 * time.Second, false},
		{`"250ms"`, 250 * time.Millisecond, false},
		{`"2.5"`, 2500 * time.Millisecond, false},
		{`3`, 3 * time.Second, false},
		{`0.5`, 500 * time.Millisecond, false},
		{`"soon"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.Std() != tt.want {
				t.Errorf("got %v, want %v", d.Std(), tt.want)
			}
		})
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotel.json")
	body := `{"serial_port": "/dev/ttyUSB0", "volume_limit": 40, "idle_timeout": 10, "mqtt": {"broker": "tcp://hub:1883"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SerialPort != "/dev/ttyUSB0" || cfg.VolumeLimit != 40 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.IdleTimeout.Std() != 10*time.Second {
		t.Errorf("idle timeout = %v", cfg.IdleTimeout.Std())
	}
	if cfg.BaudRate != 115200 || cfg.MQTT.Topic != "rotel" {
		t.Errorf("defaults lost: baud %d topic %q", cfg.BaudRate, cfg.MQTT.Topic)
	}
	if cfg.MQTT.Broker != "tcp://hub:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.json"), &cfg); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{"), 0o600)
	if err := LoadFile(path, &cfg); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ROTEL_SERIAL_PORT":    "/dev/ttyS1",
		"ROTEL_VOLUME_LIMIT":   "60",
		"ROTEL_SINGLE_REQUEST": "false",
		"ROTEL_SETTLE_DELAY":   "2s",
		"ROTEL_MQTT_BROKER":    "tcp://broker:1883",
		"ROTEL_LISTEN":         "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnv(&cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.SerialPort != "/dev/ttyS1" || cfg.VolumeLimit != 60 || cfg.SingleRequest {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.SettleDelay.Std() != 2*time.Second {
		t.Errorf("settle delay = %v", cfg.SettleDelay.Std())
	}
	if cfg.ListenAddr != "127.0.0.1:65015" {
		t.Errorf("empty variable overrode listen address: %q", cfg.ListenAddr)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	lookup := func(k string) (string, bool) {
		switch k {
		case "ROTEL_VOLUME_LIMIT":
			return "loud", true
		case "ROTEL_ANNOUNCE":
			return "perhaps", true
		}
		return "", false
	}
	cfg := Default()
	if err := ApplyEnv(&cfg, lookup); err == nil {
		t.Fatal("expected an error")
	}
	if cfg.VolumeLimit != 55 {
		t.Errorf("bad value changed limit to %d", cfg.VolumeLimit)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP(FlagPort, "p", "/dev/ttyAMA0", "")
	fs.IntP(FlagBaud, "b", 115200, "")
	fs.String(FlagListen, "127.0.0.1:65015", "")
	fs.Bool(FlagKeepOpen, false, "")
	fs.Duration(FlagIdleTimeout, 3*time.Second, "")
	fs.Int(FlagVolumeLimit, 55, "")
	fs.Bool(FlagNoUnmute, false, "")
	fs.CountP(FlagVerbose, "v", "")
	fs.String(FlagMQTT, "", "")
	return fs
}

func TestApplyFlagsOnlyVisited(t *testing.T) {
	fs := newFlagSet()
	if err := fs.Parse([]string{"--keep-open", "-vv", "--volume-limit", "70", "--idle-timeout", "5s", "--no-unmute"}); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.SerialPort = "/dev/from-file"
	if err := ApplyFlags(fs, &cfg); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if cfg.SerialPort != "/dev/from-file" {
		t.Errorf("unset --port overrode the file value: %q", cfg.SerialPort)
	}
	if cfg.SingleRequest || cfg.UnmuteOnPowerUp {
		t.Errorf("boolean flags not applied: %+v", cfg)
	}
	if cfg.Verbosity != 2 || cfg.VolumeLimit != 70 || cfg.IdleTimeout.Std() != 5*time.Second {
		t.Errorf("verbosity %d limit %d idle %v", cfg.Verbosity, cfg.VolumeLimit, cfg.IdleTimeout.Std())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no serial port", func(c *Config) { c.SerialPort = "" }},
		{"zero baud", func(c *Config) { c.BaudRate = 0 }},
		{"no listen address", func(c *Config) { c.ListenAddr = "" }},
		{"negative limit", func(c *Config) { c.VolumeLimit = -1 }},
		{"negative settle", func(c *Config) { c.SettleDelay = Duration(-time.Second) }},
		{"broker without topic", func(c *Config) { c.MQTT.Broker = "tcp://x:1883"; c.MQTT.Topic = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}
