// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/web"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is a byte stream to the amplifier
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerialConnection opens the amplifier link: 8N1, no flow control
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	port.ResetInputBuffer()

	return &SerialConnection{port: port}, nil
}

// isDisconnectionError reports whether a serial read error means the
// device is gone rather than a transient failure
func isDisconnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "file already closed")
}

// GetPassword retrieves the HTTP password from the environment or prompts
func GetPassword() (string, error) {
	if pw := os.Getenv("ROTEL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// streamDialer returns a function that opens the state stream named by
// --url, asking for the password once
func streamDialer() (func(ctx context.Context) (*web.Client, error), error) {
	if wsURL == "" {
		return nil, fmt.Errorf("--url must be specified")
	}
	opts := web.DialOptions{Username: wsUsername, SkipSSLVerify: wsNoSSLVerify}
	if wsUsername != "" {
		pw, err := GetPassword()
		if err != nil {
			return nil, err
		}
		opts.Password = pw
	}
	return func(ctx context.Context) (*web.Client, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return web.Dial(ctx, wsURL, opts)
	}, nil
}
