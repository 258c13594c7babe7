// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/logging"
	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/spf13/cobra"
)

var rawLogQuery bool

var rawLogQueries = []string{
	"get_current_power",
	"get_product_type",
	"get_product_version",
	"get_volume_max",
	"get_volume_min",
	"get_current_source",
	"get_current_speaker",
	"get_volume",
	"get_mute_status",
	"get_current_freq",
}

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded amplifier traffic",
	Long: `Continuously decode and display frames from the amplifier serial link.

Each frame is printed with a timestamp, its decoded kind and value. Front
panel display updates are printed as they arrive. With --query the current
state is requested once at startup.

Do not run this against a port the daemon already owns.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rawLogCmd.Flags().BoolVarP(&rawLogQuery, "query", "q", false, "Query the amplifier state at startup")
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, err := OpenSerialConnection(portName, baudRate)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Rotelstat - Raw Frame Log\n")
	fmt.Printf("Connection: Serial: %s @ %d baud\n", portName, baudRate)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// The link is only touched by this goroutine
	link := rotel.NewLink(conn, logging.Component(logging.New(verbosity, os.Stderr), "link"))
	link.SubscribeFrames(func(frame string) {
		fmt.Print(rotel.FormatFrame(time.Now(), frame))
	})
	link.SubscribeDisplay(func(d rotel.Display) {
		fmt.Print(rotel.FormatDisplay(time.Now(), d))
	})

	if rawLogQuery {
		for _, q := range rawLogQueries {
			if err := link.Send(q); err != nil {
				return fmt.Errorf("query %s: %w", q, err)
			}
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		conn.Close()
	}()

	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			link.Feed(buf[:n])
		}
		if err != nil {
			if isDisconnectionError(err) {
				log.Printf("Connection closed")
				fmt.Print("\n" + link.Stats().Snapshot().String())
				return nil
			}
			log.Printf("Read error: %v", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}
