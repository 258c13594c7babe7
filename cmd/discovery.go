// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/announce"
	"github.com/spf13/cobra"
)

var discoveryTimeout time.Duration

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover daemons advertised over mDNS",
	Long: `Browse the local network for rotelstat daemons started with --announce.

Each daemon advertises its command port as a ` + announce.ServiceType + ` service
with the configured volume limit and version in its TXT record.

Examples:
  rotelstat discovery
  rotelstat ctl --discover vol 0.3

Exit codes:
  0 - At least one daemon found
  1 - No daemons found
  2 - Browse error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "timeout", 3*time.Second, "How long to listen for answers")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	fmt.Printf("Rotelstat - Daemon Discovery\n")
	fmt.Printf("Service: %s in %s\n", announce.ServiceType, announce.Domain)
	fmt.Printf("Timeout: %v\n\n", discoveryTimeout)

	services, err := announce.Browse(context.Background(), discoveryTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Browse error: %v\n", err)
		os.Exit(2)
	}

	for _, s := range services {
		fmt.Printf("Daemon found:\n")
		fmt.Printf("  Instance: %s\n", s.Instance)
		fmt.Printf("  Host: %s\n", s.Host)
		fmt.Printf("  Address: %s\n", s.Addr())
		if s.VolumeLimit > 0 {
			fmt.Printf("  Volume limit: %d\n", s.VolumeLimit)
		}
		if s.Version != "" {
			fmt.Printf("  Version: %s\n", s.Version)
		}
		fmt.Println()
	}

	fmt.Printf("--- Discovery complete ---\n")
	fmt.Printf("%d daemon(s) found\n", len(services))
	if len(services) == 0 {
		os.Exit(1)
	}
	return nil
}
