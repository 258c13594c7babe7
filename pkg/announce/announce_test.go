// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package announce

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestTXT(t *testing.T) {
	txt := TXT(55, "1.2.0")
	if len(txt) != 2 || txt[0] != "volume_limit=55" || txt[1] != "version=1.2.0" {
		t.Errorf("TXT = %q", txt)
	}
	if txt := TXT(0, ""); len(txt) != 1 || txt[0] != "volume_limit=0" {
		t.Errorf("TXT without version = %q", txt)
	}
}

func TestFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("living-room", ServiceType, Domain)
	entry.Port = 65015
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.Text = []string{"volume_limit=60", "version=dev", "garbage"}

	s, ok := fromEntry(entry)
	if !ok {
		t.Fatal("entry rejected")
	}
	if s.Instance != "living-room" || s.VolumeLimit != 60 || s.Version != "dev" {
		t.Errorf("service = %+v", s)
	}
	if s.Addr() != "192.168.1.20:65015" {
		t.Errorf("Addr() = %q", s.Addr())
	}

	entry.AddrIPv4 = nil
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	if s, ok := fromEntry(entry); !ok || s.Addr() != "[fe80::1]:65015" {
		t.Errorf("IPv6 service = %+v, %v", s, ok)
	}

	entry.AddrIPv6 = nil
	if _, ok := fromEntry(entry); ok {
		t.Error("entry without addresses accepted")
	}
	if _, ok := fromEntry(nil); ok {
		t.Error("nil entry accepted")
	}
}
