// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/Thermoquad/rotelstat/pkg/config"
	"github.com/spf13/cobra"
)

// Version is reported by --version and in mDNS/HTTP metadata
var Version = "1.0.0"

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// Stream connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	verbosity int
)

var rootCmd = &cobra.Command{
	Use:   "rotelstat",
	Short: "Rotel amplifier serial to TCP mediator",
	Long: `Rotelstat - Owns the RS-232 link to a Rotel amplifier and shares it with
network clients.

The serve command keeps a shadow copy of the amplifier state and answers
one-line commands on a TCP port ("vol 0.4", "in opt1", "? power"). The other
commands are tools around it:

  raw_log       decode the serial traffic of an amplifier
  frame_test    wait for one valid frame on the serial link
  ctl           send commands to a running daemon
  ping          check that a daemon answers on its command port
  discovery     find daemons advertised over mDNS
  monitor       live view of the daemon state over its websocket stream
  stream_check  log the websocket stream for a while

Connection modes:
  Serial:    --port /dev/ttyAMA0 [--baud 115200]
  WebSocket: --url http://host:8080 [--username user]

For WebSocket authentication, the password is read from the ROTEL_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "JSON configuration file")
	pf.CountVarP(&verbosity, config.FlagVerbose, "v", "Increase verbosity (-v state, -vv requests, -vvv serial traffic)")

	pf.StringVarP(&portName, config.FlagPort, "p", config.Default().SerialPort, "Serial port device")
	pf.IntVarP(&baudRate, config.FlagBaud, "b", config.Default().BaudRate, "Baud rate (serial only)")

	pf.StringVarP(&wsURL, "url", "u", os.Getenv("ROTEL_URL"), "Daemon HTTP or WebSocket URL")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
