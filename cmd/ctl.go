// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/announce"
	"github.com/Thermoquad/rotelstat/pkg/config"
	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	ctlAddr     string
	ctlTimeout  time.Duration
	ctlDiscover bool
)

var ctlCmd = &cobra.Command{
	Use:   "ctl [command...]",
	Short: "Send commands to a running daemon",
	Long: `Send one command line to the daemon and print the reply:

  rotelstat ctl vol 0.4
  rotelstat ctl ? power

Without arguments, commands are read from stdin, one per line. On a
terminal this is an interactive console with history; type "quit" to leave.

--discover lists daemons advertised over mDNS and uses the first one.`,
	RunE: runCtl,
}

func init() {
	ctlCmd.Flags().StringVarP(&ctlAddr, "addr", "a", config.Default().ListenAddr, "Daemon command address")
	ctlCmd.Flags().DurationVarP(&ctlTimeout, "timeout", "t", 3*time.Second, "Reply timeout")
	ctlCmd.Flags().BoolVarP(&ctlDiscover, "discover", "d", false, "Find the daemon over mDNS")
	rootCmd.AddCommand(ctlCmd)
}

// exchange sends one command line on a fresh connection and reads the reply
func exchange(ctx context.Context, addr, line string, timeout time.Duration) (string, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

func discoverAddr(ctx context.Context) (string, error) {
	services, err := announce.Browse(ctx, 2*time.Second)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "", fmt.Errorf("no %s service found", announce.ServiceType)
	}
	for _, s := range services {
		fmt.Fprintf(os.Stderr, "Found %s at %s (limit %d, version %s)\n", s.Instance, s.Addr(), s.VolumeLimit, s.Version)
	}
	return services[0].Addr(), nil
}

func runCtl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	addr := ctlAddr
	if ctlDiscover {
		found, err := discoverAddr(ctx)
		if err != nil {
			return err
		}
		addr = found
	}

	if len(args) > 0 {
		reply, err := exchange(ctx, addr, strings.Join(args, " "), ctlTimeout)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			reply, err := exchange(ctx, addr, line, ctlTimeout)
			if err != nil {
				return err
			}
			fmt.Println(reply)
		}
		return scanner.Err()
	}

	return ctlConsole(ctx, addr)
}

func ctlConsole(ctx context.Context, addr string) error {
	home, _ := os.UserHomeDir()
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:       "rotel> ",
		HistoryFile:  filepath.Join(home, ".rotelstat_history"),
		HistoryLimit: 500,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Connected to %s. Type \"quit\" to exit.\n", addr)
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		reply, err := exchange(ctx, addr, line, ctlTimeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if reply == "" {
			reply = "(no reply)"
		}
		fmt.Println(reply)
	}
}
