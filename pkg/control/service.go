// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"fmt"

	"github.com/Thermoquad/rotelstat/pkg/rotel"
)

// Doer runs fn on the goroutine that owns the amplifier and waits for it
type Doer interface {
	Do(ctx context.Context, fn func()) error
}

// DeviceInfo is the state exposed to network clients
type DeviceInfo struct {
	State rotel.Snapshot      `json:"state"`
	Info  map[string]string   `json:"info,omitempty"`
	Link  rotel.StatsSnapshot `json:"link"`
}

// Service is the single owner of the amplifier shared by every network
// surface. Requests from any goroutine are serialized through the loop.
type Service struct {
	loop    Doer
	amp     *rotel.Amplifier
	link    *rotel.Link
	handler *Handler
}

// NewService wires the amplifier, its link and the command handler together
func NewService(loop Doer, amp *rotel.Amplifier, link *rotel.Link, handler *Handler) *Service {
	return &Service{loop: loop, amp: amp, link: link, handler: handler}
}

// Exec runs one command line and returns its reply
func (s *Service) Exec(ctx context.Context, line string) (string, error) {
	var reply string
	if err := s.loop.Do(ctx, func() { reply = s.handler.Handle(line) }); err != nil {
		return "", fmt.Errorf("execute %q: %w", line, err)
	}
	return reply, nil
}

// Snapshot returns a copy of the current amplifier state
func (s *Service) Snapshot(ctx context.Context) (rotel.Snapshot, error) {
	var snap rotel.Snapshot
	if err := s.loop.Do(ctx, func() { snap = s.amp.Snapshot() }); err != nil {
		return rotel.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Describe returns the state together with device info and link counters
func (s *Service) Describe(ctx context.Context) (DeviceInfo, error) {
	var d DeviceInfo
	err := s.loop.Do(ctx, func() {
		d.State = s.amp.Snapshot()
		if s.link != nil {
			d.Info = s.link.Info()
		}
	})
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("describe: %w", err)
	}
	d.Link = s.Stats()
	return d, nil
}

// Stats returns the link traffic counters
func (s *Service) Stats() rotel.StatsSnapshot {
	if s.link == nil {
		return rotel.StatsSnapshot{}
	}
	return s.link.Stats().Snapshot()
}

// Subscribe registers fn for state change notifications. fn runs on the
// event loop and must not block.
func (s *Service) Subscribe(fn func(rotel.Snapshot)) func() {
	return s.amp.Subscribe(fn)
}

// Watch returns the current state and registers fn for every change after
// it. Both happen in one loop task, so fn never sees a state older than the
// returned one.
func (s *Service) Watch(ctx context.Context, fn func(rotel.Snapshot)) (rotel.Snapshot, func(), error) {
	var (
		snap        rotel.Snapshot
		unsubscribe func()
	)
	err := s.loop.Do(ctx, func() {
		snap = s.amp.Snapshot()
		unsubscribe = s.amp.Subscribe(fn)
	})
	if err != nil {
		// The task may still run after Do gave up waiting
		s.loop.Post(func() {
			if unsubscribe != nil {
				unsubscribe()
			}
		})
		return rotel.Snapshot{}, nil, fmt.Errorf("watch: %w", err)
	}
	return snap, unsubscribe, nil
}
