// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/logging"
	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/spf13/cobra"
)

var frameTestTimeout time.Duration

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test the serial link by waiting for a valid frame",
	Long: `Ask the amplifier for its power state and wait for any complete frame.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a frame
  2 - Connection error

Do not run this against a port the daemon already owns.`,
	Args: cobra.NoArgs,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().DurationVar(&frameTestTimeout, "timeout", 10*time.Second, "How long to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, err := OpenSerialConnection(portName, baudRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Rotelstat - Frame Test\n")
	fmt.Printf("Connection: Serial: %s @ %d baud\n", portName, baudRate)
	fmt.Printf("Timeout: %v\n", frameTestTimeout)

	frames := make(chan string, 1)
	errChan := make(chan error, 1)

	link := rotel.NewLink(conn, logging.Component(logging.New(verbosity, os.Stderr), "link"))
	link.SubscribeFrames(func(frame string) {
		select {
		case frames <- frame:
		default:
		}
	})

	if err := link.Send("get_current_power"); err != nil {
		fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("Waiting for a frame...\n\n")

	// The link is only touched by the reader from here on
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				link.Feed(buf[:n])
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	select {
	case frame := <-frames:
		msg := rotel.ParseMessage(rotel.Sanitize(frame))
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Frame: %q\n", frame)
		fmt.Printf("  Kind: %s\n", msg.Kind)
		if detail := rotel.FormatDetail(msg); detail != "" {
			fmt.Printf("  Detail: %s\n", detail)
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(frameTestTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No frame received within %v\n", frameTestTimeout)
		os.Exit(1)
	}
	return nil
}
