// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/config"
	"github.com/spf13/cobra"
)

var (
	pingAddr    string
	pingTimeout time.Duration
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a daemon answers on its command port",
	Long: `Send "? power" to the daemon command port and wait for the reply.

Each ping opens a new connection, so this also exercises the accept path of
a daemon running with the default single request mode.

This is useful for verifying:
  - The daemon is listening on --addr
  - The event loop is processing commands
  - The reported power state

Exit codes:
  0 - All pings answered
  1 - One or more pings failed/timed out
  2 - Invalid arguments`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().StringVarP(&pingAddr, "addr", "a", config.Default().ListenAddr, "Daemon command address")
	pingCmd.Flags().DurationVarP(&pingTimeout, "timeout", "t", 5*time.Second, "Timeout for each ping")
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 3, "Number of pings to send")
}

// pingResult is the outcome of one ping
type pingResult struct {
	reply string
	rtt   time.Duration
	err   error
}

func pingOnce(ctx context.Context, addr string, timeout time.Duration) pingResult {
	start := time.Now()
	reply, err := exchange(ctx, addr, "? power", timeout)
	if err == nil && reply == "" {
		err = fmt.Errorf("empty reply")
	}
	return pingResult{reply: reply, rtt: time.Since(start), err: err}
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		fmt.Fprintf(os.Stderr, "--count must be at least 1\n")
		os.Exit(2)
	}

	fmt.Printf("Rotelstat - Command Port Ping\n")
	fmt.Printf("Address: %s\n", pingAddr)
	fmt.Printf("Timeout: %v per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	ctx := context.Background()
	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		res := pingOnce(ctx, pingAddr, pingTimeout)
		if res.err != nil {
			fmt.Printf("FAILED: %v\n", res.err)
			failCount++
		} else {
			fmt.Printf("%q, rtt=%v\n", res.reply, res.rtt.Round(time.Millisecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
