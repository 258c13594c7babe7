// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the daemon settings. Values are layered: built-in
// defaults, then an optional JSON file, then ROTEL_* environment variables,
// then command-line flags the user actually set.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Duration is a time.Duration that unmarshals from "4s" or a number of seconds
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(value * float64(time.Second))
	case string:
		parsed, err := parseDuration(value)
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(parsed), nil
}

// MQTT configures the optional MQTT bridge. An empty Broker disables it.
type MQTT struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Config struct {
	SerialPort string `json:"serial_port"`
	BaudRate   int    `json:"baud_rate"`

	ListenAddr    string   `json:"listen"`
	SingleRequest bool     `json:"single_request"`
	IdleTimeout   Duration `json:"idle_timeout"`

	VolumeLimit         int      `json:"volume_limit"`
	UpdateDisplay       bool     `json:"update_display"`
	AllowUnknownSources bool     `json:"allow_unknown_sources"`
	UnmuteOnPowerUp     bool     `json:"unmute_on_power_up"`
	SettleDelay         Duration `json:"settle_delay"`
	PendingTimeout      Duration `json:"pending_timeout"`
	SleepDefault        Duration `json:"sleep_default"`
	MaybeThreshold      int      `json:"maybe_threshold"`

	Verbosity int  `json:"verbosity"`
	RawLog    bool `json:"raw_log"`

	HTTPAddr     string `json:"http_addr"`
	HTTPUser     string `json:"http_user"`
	HTTPPassword string `json:"http_password"`

	MQTT MQTT `json:"mqtt"`

	Announce     bool   `json:"announce"`
	AnnounceName string `json:"announce_name"`
}

// Default returns the settings used when nothing else is configured
func Default() Config {
	return Config{
		SerialPort:      "/dev/ttyAMA0",
		BaudRate:        115200,
		ListenAddr:      "127.0.0.1:65015",
		SingleRequest:   true,
		IdleTimeout:     Duration(3 * time.Second),
		VolumeLimit:     55,
		UnmuteOnPowerUp: true,
		SettleDelay:     Duration(4 * time.Second),
		PendingTimeout:  Duration(8 * time.Second),
		SleepDefault:    Duration(30 * time.Second),
		MaybeThreshold:  10,
		MQTT: MQTT{
			ClientID: "rotelstat",
			Topic:    "rotel",
		},
		AnnounceName: "rotel",
	}
}

// LoadFile merges a JSON file over cfg. Keys missing from the file keep
// their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from ROTEL_* environment variables. lookup is
// usually os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("ROTEL_SERIAL_PORT", &cfg.SerialPort)
	num("ROTEL_BAUD_RATE", &cfg.BaudRate)
	str("ROTEL_LISTEN", &cfg.ListenAddr)
	flag("ROTEL_SINGLE_REQUEST", &cfg.SingleRequest)
	dur("ROTEL_IDLE_TIMEOUT", &cfg.IdleTimeout)
	num("ROTEL_VOLUME_LIMIT", &cfg.VolumeLimit)
	flag("ROTEL_UPDATE_DISPLAY", &cfg.UpdateDisplay)
	flag("ROTEL_ALLOW_UNKNOWN_SOURCES", &cfg.AllowUnknownSources)
	flag("ROTEL_UNMUTE", &cfg.UnmuteOnPowerUp)
	dur("ROTEL_SETTLE_DELAY", &cfg.SettleDelay)
	dur("ROTEL_PENDING_TIMEOUT", &cfg.PendingTimeout)
	dur("ROTEL_SLEEP", &cfg.SleepDefault)
	num("ROTEL_MAYBE_THRESHOLD", &cfg.MaybeThreshold)
	num("ROTEL_VERBOSITY", &cfg.Verbosity)
	str("ROTEL_HTTP_ADDR", &cfg.HTTPAddr)
	str("ROTEL_HTTP_USER", &cfg.HTTPUser)
	str("ROTEL_PASSWORD", &cfg.HTTPPassword)
	str("ROTEL_MQTT_BROKER", &cfg.MQTT.Broker)
	str("ROTEL_MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("ROTEL_MQTT_TOPIC", &cfg.MQTT.Topic)
	str("ROTEL_MQTT_USER", &cfg.MQTT.Username)
	str("ROTEL_MQTT_PASS", &cfg.MQTT.Password)
	flag("ROTEL_ANNOUNCE", &cfg.Announce)
	str("ROTEL_ANNOUNCE_NAME", &cfg.AnnounceName)

	return errors.Join(errs...)
}

// Flag names understood by ApplyFlags
const (
	FlagPort           = "port"
	FlagBaud           = "baud"
	FlagListen         = "listen"
	FlagKeepOpen       = "keep-open"
	FlagIdleTimeout    = "idle-timeout"
	FlagVolumeLimit    = "volume-limit"
	FlagDisplay        = "display"
	FlagUnknownSources = "allow-unknown-sources"
	FlagNoUnmute       = "no-unmute"
	FlagVerbose        = "verbose"
	FlagRawLog         = "raw-log"
	FlagHTTP           = "http"
	FlagMQTT           = "mqtt"
	FlagMQTTTopic      = "mqtt-topic"
	FlagAnnounce       = "announce"
)

// ApplyFlags copies every flag the user set on fs into cfg. Flags left at
// their defaults do not override file or environment values.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagPort:
			cfg.SerialPort, err = fs.GetString(f.Name)
		case FlagBaud:
			cfg.BaudRate, err = fs.GetInt(f.Name)
		case FlagListen:
			cfg.ListenAddr, err = fs.GetString(f.Name)
		case FlagKeepOpen:
			var keep bool
			keep, err = fs.GetBool(f.Name)
			cfg.SingleRequest = !keep
		case FlagIdleTimeout:
			var d time.Duration
			d, err = fs.GetDuration(f.Name)
			cfg.IdleTimeout = Duration(d)
		case FlagVolumeLimit:
			cfg.VolumeLimit, err = fs.GetInt(f.Name)
		case FlagDisplay:
			cfg.UpdateDisplay, err = fs.GetBool(f.Name)
		case FlagUnknownSources:
			cfg.AllowUnknownSources, err = fs.GetBool(f.Name)
		case FlagNoUnmute:
			var no bool
			no, err = fs.GetBool(f.Name)
			cfg.UnmuteOnPowerUp = !no
		case FlagVerbose:
			cfg.Verbosity, err = fs.GetCount(f.Name)
		case FlagRawLog:
			cfg.RawLog, err = fs.GetBool(f.Name)
		case FlagHTTP:
			cfg.HTTPAddr, err = fs.GetString(f.Name)
		case FlagMQTT:
			cfg.MQTT.Broker, err = fs.GetString(f.Name)
		case FlagMQTTTopic:
			cfg.MQTT.Topic, err = fs.GetString(f.Name)
		case FlagAnnounce:
			cfg.Announce, err = fs.GetBool(f.Name)
		}
		if err != nil {
			err = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	return err
}

// Validate reports settings the daemon cannot start with
func (c Config) Validate() error {
	var errs []error
	if c.SerialPort == "" {
		errs = append(errs, errors.New("serial port must be set"))
	}
	if c.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", c.BaudRate))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address must be set"))
	}
	if c.VolumeLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid volume limit %d", c.VolumeLimit))
	}
	if c.MaybeThreshold < 0 {
		errs = append(errs, fmt.Errorf("invalid maybe threshold %d", c.MaybeThreshold))
	}
	for name, d := range map[string]Duration{
		"idle_timeout":    c.IdleTimeout,
		"settle_delay":    c.SettleDelay,
		"pending_timeout": c.PendingTimeout,
		"sleep_default":   c.SleepDefault,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt topic must be set when a broker is configured"))
	}
	return errors.Join(errs...)
}
