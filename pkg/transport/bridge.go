// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ErrBridgeClosed is returned when reading from a closed bridge connection.
var ErrBridgeClosed = errors.New("bridge connection closed")

// Bridge reaches a CloudWatcher attached to a network serial bridge over
// WebSocket binary messages. Messages arrive in arbitrary chunk sizes, so
// reads go through an internal buffer.
//
// A dedicated goroutine pumps messages off the socket; ReadExact and
// ReadUntil wait on its channel with their own timer. gorilla/websocket
// fails the read side permanently after any read error, deadline expiry
// included, so deadlines must never touch the conn directly: a slow device
// response has to stay retryable.
type Bridge struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	messages chan []byte
	done     chan struct{}
	readErr  error // set by readLoop before messages is closed

	buf       []byte
	bufOffset int
	closed    bool
}

// BridgeConfig holds the bridge dial parameters. Username/Password enable
// HTTP basic auth; SkipTLSVerify applies to wss:// only.
type BridgeConfig struct {
	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DialBridge connects to a serial-over-WebSocket bridge.
func DialBridge(cfg BridgeConfig) (*Bridge, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported bridge URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge connection failed: %w", err)
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}

	b := &Bridge{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		messages:     make(chan []byte, 8),
		done:         make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

// readLoop is the sole reader of the conn. It forwards binary messages and
// exits on the first read error, recording it for the consumer.
func (b *Bridge) readLoop() {
	defer close(b.messages)
	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			b.readErr = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case b.messages <- data:
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) Write(p []byte) error {
	if b.closed {
		return ErrBridgeClosed
	}
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	if err := b.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

func (b *Bridge) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	deadline := time.Now().Add(b.readTimeout)
	for len(buf) < n {
		chunk, err := b.readBuffered(n-len(buf), deadline)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

func (b *Bridge) ReadUntil(delim byte) ([]byte, error) {
	var out []byte
	deadline := time.Now().Add(b.readTimeout)
	for {
		chunk, err := b.readBuffered(1, deadline)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if chunk[0] == delim {
			return out, nil
		}
	}
}

// readBuffered returns up to max bytes, pulling the next binary message off
// the reader goroutine's channel when the internal buffer runs dry. A
// deadline expiry leaves the connection intact: the message, when it
// eventually arrives, is delivered to the next read.
func (b *Bridge) readBuffered(max int, deadline time.Time) ([]byte, error) {
	if b.closed {
		return nil, ErrBridgeClosed
	}

	for b.bufOffset >= len(b.buf) {
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, &TimeoutError{Op: "bridge read", Want: max, Got: 0}
		}
		timer := time.NewTimer(wait)
		select {
		case data, ok := <-b.messages:
			timer.Stop()
			if !ok {
				return nil, fmt.Errorf("bridge read: %w", b.readErr)
			}
			b.buf = data
			b.bufOffset = 0
		case <-timer.C:
			return nil, &TimeoutError{Op: "bridge read", Want: max, Got: 0}
		}
	}

	end := b.bufOffset + max
	if end > len(b.buf) {
		end = len(b.buf)
	}
	chunk := b.buf[b.bufOffset:end]
	b.bufOffset = end
	return chunk, nil
}

// SetReadTimeout swaps the per-read deadline and returns the previous one.
func (b *Bridge) SetReadTimeout(d time.Duration) (time.Duration, error) {
	prev := b.readTimeout
	b.readTimeout = d
	return prev, nil
}

// SetSpeed is a no-op: the bridge owns the physical line rate and
// reconfigures it out of band.
func (b *Bridge) SetSpeed(baud int) error {
	return nil
}

func (b *Bridge) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return b.conn.Close()
}
