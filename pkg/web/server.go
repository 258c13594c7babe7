// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package web serves the amplifier state over HTTP: JSON status endpoints
// and a websocket stream of CBOR-encoded state changes.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/control"
	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStatsInterval = 5 * time.Second

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	streamBuffer = 32
)

// Source is the state provider behind the HTTP surface
type Source interface {
	Snapshot(ctx context.Context) (rotel.Snapshot, error)
	Describe(ctx context.Context) (control.DeviceInfo, error)
	Stats() rotel.StatsSnapshot
	Watch(ctx context.Context, fn func(rotel.Snapshot)) (rotel.Snapshot, func(), error)
}

type Options struct {
	// Username and Password enable HTTP basic auth when both are set
	Username      string
	Password      string
	StatsInterval time.Duration
	Version       string
}

// Server is the HTTP and websocket front end
type Server struct {
	src      Source
	opts     Options
	log      *logrus.Entry
	upgrader websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
	streams   sync.WaitGroup
	clients   atomic.Int32
	dropped   atomic.Uint64
}

func NewServer(src Source, opts Options, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	return &Server{
		src:     src,
		opts:    opts,
		log:     log,
		closing: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/ws", s.handleStream)
	if s.opts.Username == "" || s.opts.Password == "" {
		return mux
	}
	return s.basicAuth(mux)
}

// Serve runs the HTTP server on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Infof("HTTP listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.Close()
		return err
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.streams.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close ends every open stream
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Clients returns the number of connected stream clients
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.opts.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="rotelstat"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Error encoding JSON: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	info, err := s.src.Describe(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := s.src.Snapshot(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		s.writeJSON(w, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, map[string]any{
		"status":  "ok",
		"power":   snap.Power,
		"clients": s.Clients(),
		"version": s.opts.Version,
	})
}

type metrics struct {
	rotel.StatsSnapshot
	StreamClients  int    `json:"stream_clients"`
	StreamsDropped uint64 `json:"stream_updates_dropped"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, metrics{
		StatsSnapshot:  s.src.Stats(),
		StreamClients:  s.Clients(),
		StreamsDropped: s.dropped.Load(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("upgrade error: %v", err)
		return
	}
	s.streams.Add(1)
	defer s.streams.Done()
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)

	log := s.log.WithField("peer", r.RemoteAddr)
	log.Debug("stream client connected")
	defer log.Debug("stream client disconnected")

	updates := make(chan rotel.Snapshot, streamBuffer)
	snap, unsubscribe, err := s.src.Watch(r.Context(), func(snap rotel.Snapshot) {
		select {
		case updates <- snap:
		default:
			s.dropped.Add(1)
		}
	})
	if err != nil {
		log.Warnf("initial snapshot: %v", err)
		return
	}
	defer unsubscribe()
	if err := s.writeState(conn, snap); err != nil {
		log.Debugf("write: %v", err)
		return
	}

	// Clients only send control frames; reading detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stats := time.NewTicker(s.opts.StatsInterval)
	defer stats.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case snap := <-updates:
			err = s.writeState(conn, snap)
		case <-stats.C:
			err = s.writeStats(conn, s.src.Stats())
		case <-ping.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		case <-gone:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(writeWait))
			return
		}
		if err != nil {
			log.Debugf("write: %v", err)
			return
		}
	}
}

func (s *Server) writeState(conn *websocket.Conn, snap rotel.Snapshot) error {
	data, err := EncodeState(snap)
	if err != nil {
		return err
	}
	return writeBinary(conn, data)
}

func (s *Server) writeStats(conn *websocket.Conn, stats rotel.StatsSnapshot) error {
	data, err := EncodeStats(stats)
	if err != nil {
		return err
	}
	return writeBinary(conn, data)
}

func writeBinary(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
