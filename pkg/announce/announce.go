// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package announce advertises the command port over mDNS and finds
// advertised amplifiers on the local network.
package announce

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_rotel._tcp"
	Domain      = "local."
)

// Service is a discovered amplifier daemon
type Service struct {
	Instance    string
	Host        string
	Port        int
	VolumeLimit int
	Version     string
}

// Addr returns host:port for dialing the command port
func (s Service) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TXT builds the TXT records for an advertisement
func TXT(volumeLimit int, version string) []string {
	txt := []string{"volume_limit=" + strconv.Itoa(volumeLimit)}
	if version != "" {
		txt = append(txt, "version="+version)
	}
	return txt
}

// Register advertises the command port until the returned function is called
func Register(instance string, port, volumeLimit int, version string) (func(), error) {
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, TXT(volumeLimit, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	return server.Shutdown, nil
}

func fromEntry(entry *zeroconf.ServiceEntry) (Service, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return Service{}, false
	}
	s := Service{Instance: entry.Instance, Port: entry.Port}
	if len(entry.AddrIPv4) > 0 {
		s.Host = entry.AddrIPv4[0].String()
	} else {
		s.Host = entry.AddrIPv6[0].String()
	}
	for _, kv := range entry.Text {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case "volume_limit":
			s.VolumeLimit, _ = strconv.Atoi(value)
		case "version":
			s.Version = value
		}
	}
	return s, true
}

// Browse collects advertised amplifiers for the given duration
func Browse(ctx context.Context, wait time.Duration) ([]Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Service)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if s, ok := fromEntry(entry); ok {
					found[s.Instance] = s
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for %s: %w", ServiceType, err)
	}
	<-done

	services := make([]Service, 0, len(found))
	for _, s := range found {
		services = append(services, s)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Instance < services[j].Instance })
	return services, nil
}
