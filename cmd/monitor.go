// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/config"
	"github.com/Thermoquad/rotelstat/pkg/web"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorAddr string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of a running daemon",
	Long: `Follow the daemon state over its websocket stream (serve --http).

Shows power, source, volume, speakers, the front panel display and link
counters, with a log of every change. Commands typed in the input line are
sent to the daemon command port (--addr) and their replies logged.

Features:
  - Live state from the /ws stream
  - Command input with replies
  - Automatic reconnection on connection loss

Requires --url pointing at the daemon HTTP address.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorAddr, "addr", "a", config.Default().ListenAddr, "Daemon command address")
	rootCmd.AddCommand(monitorCmd)
}

// streamManager handles the stream connection lifecycle and reconnection
type streamManager struct {
	dial   func(ctx context.Context) (*web.Client, error)
	client *web.Client
	mu     sync.Mutex
	p      *tea.Program
	ctx    context.Context
	cancel context.CancelFunc
}

func (sm *streamManager) setClient(c *web.Client) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.client = c
}

func (sm *streamManager) close() {
	sm.cancel()
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.client != nil {
		sm.client.Close()
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	dial, err := streamDialer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm := &streamManager{dial: dial, ctx: ctx, cancel: cancel}

	client, err := dial(ctx)
	if err != nil {
		cancel()
		return err
	}
	sm.setClient(client)

	m := initialMonitorModel(wsURL, monitorAddr)
	p := tea.NewProgram(m, tea.WithAltScreen())
	sm.p = p

	go sm.readerLoop(client)

	_, err = p.Run()
	sm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// readerLoop forwards frames to the TUI and reconnects when the stream drops
func (sm *streamManager) readerLoop(client *web.Client) {
	for {
		for {
			f, err := client.Next()
			if err != nil {
				break
			}
			switch f.Kind {
			case web.FrameState:
				sm.p.Send(stateMsg{snap: f.State})
			case web.FrameStats:
				sm.p.Send(statsMsg{stats: f.Stats})
			}
		}

		if sm.ctx.Err() != nil {
			return
		}
		sm.p.Send(connectionLostMsg{})

		client = sm.reconnect()
		if client == nil {
			return
		}
	}
}

// reconnect retries with exponential backoff. Returns nil on shutdown.
func (sm *streamManager) reconnect() *web.Client {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-sm.ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		client, err := sm.dial(sm.ctx)
		if err == nil {
			sm.setClient(client)
			sm.p.Send(reconnectedMsg{})
			return client
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
