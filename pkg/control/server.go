// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultIdleTimeout = 3 * time.Second
	maxLineLength      = 4096
)

// Executor runs one command line
type Executor interface {
	Exec(ctx context.Context, line string) (string, error)
}

// ServerOptions configures connection handling
type ServerOptions struct {
	// SingleRequest closes each connection after its first reply
	SingleRequest bool
	// IdleTimeout closes connections that send nothing for this long
	IdleTimeout time.Duration
}

// Server accepts command connections
type Server struct {
	exec Executor
	opts ServerOptions
	log  *logrus.Entry

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a command server
func NewServer(exec Executor, opts ServerOptions, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Server{
		exec:  exec,
		opts:  opts,
		log:   log,
		conns: make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln until ctx is cancelled, then closes every
// open connection and waits for the handlers to finish
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
		s.closeAll()
	}()

	s.log.Infof("Listening on %s", ln.Addr())
	backoff := 5 * time.Millisecond
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warnf("Accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				continue
			}
			s.closeAll()
			s.wg.Wait()
			return err
		}
		backoff = 5 * time.Millisecond

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// scanLines splits on any run of CR or LF
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	// An unterminated line at EOF is not a request
	return 0, nil, nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	peer := conn.RemoteAddr().String()
	log := s.log.WithField("peer", peer)
	log.Debug("Connected")
	defer log.Debug("Disconnected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 256), maxLineLength)
	scanner.Split(scanLines)

	for {
		conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					log.Debug("Idle timeout")
				} else if ctx.Err() == nil {
					log.Debugf("Read error: %v", err)
				}
			}
			return
		}

		line := strings.Join(strings.Fields(scanner.Text()), " ")
		if line == "" {
			continue
		}
		log.Debugf(">> %q", line)

		reply, err := s.exec.Exec(ctx, line)
		if err != nil {
			log.Errorf("Request failed: %v", err)
			return
		}

		log.Debugf("<< %s", reply)
		conn.SetWriteDeadline(time.Now().Add(s.opts.IdleTimeout))
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			log.Debugf("Write error: %v", err)
			return
		}
		if s.opts.SingleRequest {
			return
		}
	}
}
