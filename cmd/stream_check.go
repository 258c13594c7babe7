// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/web"
	"github.com/spf13/cobra"
)

var streamCheckDuration time.Duration

var streamCheckCmd = &cobra.Command{
	Use:   "stream_check",
	Short: "Test websocket stream stability",
	Long: `Connect to the daemon websocket stream and log every frame received.

No commands are sent. Useful for debugging connection stability between the
daemon and remote displays. Requires --url.

Exit codes:
  0 - Test completed normally
  1 - Stream dropped
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runStreamCheck,
}

func init() {
	rootCmd.AddCommand(streamCheckCmd)
	streamCheckCmd.Flags().DurationVar(&streamCheckDuration, "duration", 30*time.Second, "Test duration")
}

func runStreamCheck(cmd *cobra.Command, args []string) error {
	dial, err := streamDialer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), streamCheckDuration)
	defer cancel()

	client, err := dial(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Websocket Stream Stability Test\n")
	streamURL, _ := web.StreamURL(wsURL)
	fmt.Printf("Connection: %s\n", streamURL)
	fmt.Printf("Duration: %v\n\n", streamCheckDuration)

	frames := make(chan web.Frame, 16)
	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := client.Next()
			if err != nil {
				errCh <- err
				return
			}
			frames <- f
		}
	}()

	start := time.Now()
	counts := map[web.FrameKind]int{}
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	summary := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("State frames: %d\n", counts[web.FrameState])
		fmt.Printf("Stats frames: %d\n", counts[web.FrameStats])
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for frames...\n\n")
	for {
		select {
		case f := <-frames:
			counts[f.Kind]++
			now := time.Now().Format("15:04:05.000")
			switch f.Kind {
			case web.FrameState:
				fmt.Printf("[%s] state: power=%s source=%s volume=%.1f\n", now, f.State.Power, f.State.Source, f.State.Volume)
			default:
				fmt.Printf("[%s] %s\n", now, f.Kind)
			}

		case err := <-errCh:
			fmt.Printf("\n[%s] Stream error: %v\n", time.Now().Format("15:04:05.000"), err)
			summary("FAILED (stream dropped)")
			os.Exit(1)

		case <-heartbeat.C:
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), (streamCheckDuration - time.Since(start)).Seconds())

		case <-ctx.Done():
			summary("PASSED (connection stable)")
			return nil
		}
	}
}
