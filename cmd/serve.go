// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/announce"
	"github.com/Thermoquad/rotelstat/pkg/config"
	"github.com/Thermoquad/rotelstat/pkg/control"
	"github.com/Thermoquad/rotelstat/pkg/logging"
	"github.com/Thermoquad/rotelstat/pkg/loop"
	"github.com/Thermoquad/rotelstat/pkg/mqttbridge"
	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/Thermoquad/rotelstat/pkg/web"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const listenFDStart = 3

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the amplifier daemon",
	Long: `Open the amplifier serial link and serve the line command protocol.

Each TCP connection carries one command per line and receives one reply
line. By default the connection is closed after the first reply; use
--keep-open for interactive clients.

Settings come from, in increasing precedence: built-in defaults, the
--config JSON file, ROTEL_* environment variables and command-line flags.

When started by systemd with socket activation (LISTEN_FDS), the inherited
socket is used instead of --listen.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	def := config.Default()
	f := serveCmd.Flags()
	f.StringP(config.FlagListen, "l", def.ListenAddr, "TCP address for the command protocol")
	f.Bool(config.FlagKeepOpen, !def.SingleRequest, "Keep connections open after the first reply")
	f.Duration(config.FlagIdleTimeout, def.IdleTimeout.Std(), "Close client connections idle for this long")
	f.Int(config.FlagVolumeLimit, def.VolumeLimit, "Highest raw volume the daemon will set (0 = device maximum)")
	f.Bool(config.FlagDisplay, def.UpdateDisplay, "Request front panel display updates")
	f.Bool(config.FlagUnknownSources, def.AllowUnknownSources, "Accept source names outside the known list")
	f.Bool(config.FlagNoUnmute, !def.UnmuteOnPowerUp, "Do not unmute after power-up")
	f.Bool(config.FlagRawLog, def.RawLog, "Print every decoded frame to stdout")
	f.String(config.FlagHTTP, def.HTTPAddr, "HTTP address for /state, /metrics and the /ws stream (empty = off)")
	f.String(config.FlagMQTT, def.MQTT.Broker, "MQTT broker URL, e.g. tcp://localhost:1883 (empty = off)")
	f.String(config.FlagMQTTTopic, def.MQTT.Topic, "MQTT topic prefix")
	f.Bool(config.FlagAnnounce, def.Announce, "Advertise the command port over mDNS")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	if err := config.ApplyFlags(cmd.Flags(), &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// controlListener adopts a systemd-activated socket when one was passed,
// otherwise listens on addr
func controlListener(addr string) (net.Listener, error) {
	if os.Getenv("LISTEN_PID") == strconv.Itoa(os.Getpid()) {
		if n, _ := strconv.Atoi(os.Getenv("LISTEN_FDS")); n >= 1 {
			f := os.NewFile(uintptr(listenFDStart), "systemd-socket")
			defer f.Close()
			ln, err := net.FileListener(f)
			if err != nil {
				return nil, fmt.Errorf("failed to adopt activated socket: %w", err)
			}
			return ln, nil
		}
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

func amplifierOptions(cfg config.Config) rotel.Options {
	opts := rotel.DefaultOptions()
	opts.VolumeLimit = cfg.VolumeLimit
	opts.AllowUnknownSources = cfg.AllowUnknownSources
	opts.UnmuteOnPowerUp = cfg.UnmuteOnPowerUp
	opts.UpdateDisplay = cfg.UpdateDisplay
	opts.VolumeReportThreshold = logging.VolumeReportThreshold(cfg.Verbosity)
	opts.SettleDelay = cfg.SettleDelay.Std()
	opts.PendingTimeout = cfg.PendingTimeout.Std()
	return opts
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Verbosity, os.Stderr)
	log := logging.Component(logger, "main")

	conn, err := OpenSerialConnection(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("Opened serial port %s @ %d baud", cfg.SerialPort, cfg.BaudRate)

	ln, err := controlListener(cfg.ListenAddr)
	if err != nil {
		return err
	}

	var httpLn net.Listener
	if cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.HTTPAddr, err)
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// Core: everything below is owned by the event loop
	events := loop.New(256, logging.Component(logger, "loop"))
	link := rotel.NewLink(conn, logging.Component(logger, "link"))
	amp := rotel.NewAmplifier(link, events, logging.Component(logger, "amp"), amplifierOptions(cfg))
	link.SubscribeFrames(amp.HandleFrame)
	link.SubscribeDisplay(amp.HandleDisplay)
	if cfg.RawLog {
		link.SubscribeFrames(func(frame string) { fmt.Print(rotel.FormatFrame(time.Now(), frame)) })
		link.SubscribeDisplay(func(d rotel.Display) { fmt.Print(rotel.FormatDisplay(time.Now(), d)) })
	}

	netLog := logging.Component(logger, "net")
	handler := control.NewHandler(amp, events, netLog, control.HandlerOptions{
		PendingTimeout: cfg.PendingTimeout.Std(),
		SleepDefault:   cfg.SleepDefault.Std(),
		MaybeThreshold: cfg.MaybeThreshold,
	})
	svc := control.NewService(events, amp, link, handler)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				errOnce.Do(func() { firstErr = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	run("event loop", func() error { return events.Run(ctx) })
	if err := events.Post(amp.Start); err != nil {
		cancel()
		conn.Close()
		wg.Wait()
		return err
	}

	run("serial", func() error { return readSerial(ctx, conn, events, link, log) })

	server := control.NewServer(svc, control.ServerOptions{
		SingleRequest: cfg.SingleRequest,
		IdleTimeout:   cfg.IdleTimeout.Std(),
	}, netLog)
	log.Infof("Listening on %s", ln.Addr())
	run("command server", func() error { return server.Serve(ctx, ln) })

	if httpLn != nil {
		ws := web.NewServer(svc, web.Options{
			Username: cfg.HTTPUser,
			Password: cfg.HTTPPassword,
			Version:  Version,
		}, logging.Component(logger, "web"))
		run("http", func() error { return ws.Serve(ctx, httpLn) })
	}

	if cfg.MQTT.Broker != "" {
		bridge := mqttbridge.New(svc, svc, mqttbridge.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logging.Component(logger, "mqtt"))
		run("mqtt", func() error { return bridge.Run(ctx) })
	}

	if cfg.Announce {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			shutdown, err := announce.Register(cfg.AnnounceName, tcp.Port, cfg.VolumeLimit, Version)
			if err != nil {
				log.Warnf("mDNS announcement disabled: %v", err)
			} else {
				defer shutdown()
				log.Infof("Announced %s as %q", announce.ServiceType, cfg.AnnounceName)
			}
		}
	}

	<-ctx.Done()
	log.Info("Shutting down")
	conn.Close()
	wg.Wait()
	if firstErr == nil {
		log.Debugf("\n%s", link.Stats().Snapshot())
	}
	return firstErr
}

// readSerial feeds serial bytes to the link on the event loop. A
// disconnected device ends the daemon so the supervisor can restart it.
func readSerial(ctx context.Context, conn Connection, events *loop.Loop, link *rotel.Link, log *logrus.Entry) error {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if perr := events.Post(func() { link.Feed(data) }); perr != nil {
				return nil
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if isDisconnectionError(err) {
			return fmt.Errorf("serial link lost: %w", err)
		}
		log.Warnf("Read error: %v", err)
		time.Sleep(10 * time.Millisecond)
	}
}
