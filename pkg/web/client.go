// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package web

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed stream
var ErrConnectionClosed = errors.New("websocket connection closed")

// Client reads state frames from a /ws stream
type Client struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

// DialOptions configures Dial
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
}

// StreamURL turns an http(s) base address into the stream endpoint. ws and
// wss URLs are returned unchanged apart from a default /ws path.
func StreamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s (use ws://, wss://, http:// or https://)", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Dial opens a stream connection with optional HTTP Basic auth
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Client, error) {
	wsURL, err := StreamURL(rawURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u, _ := url.Parse(wsURL); u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks until the next frame arrives
func (c *Client) Next() (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrConnectionClosed
	}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed.Store(true)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, ErrConnectionClosed
			}
			return Frame{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(data)
	}
}

func (c *Client) Close() error {
	c.closed.Store(true)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
