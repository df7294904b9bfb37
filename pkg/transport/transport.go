// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

// Package transport provides byte-oriented duplex channels to a CloudWatcher
// unit: a local serial port and a remote serial-over-WebSocket bridge. The
// transport owns no protocol knowledge; framing and retries live above it.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// Transport is the byte channel a device session exclusively owns. Every
// read is bounded by the transport's configured deadline; no call blocks
// indefinitely.
type Transport interface {
	// Write sends the full buffer or fails.
	Write(p []byte) error

	// ReadExact reads exactly n bytes. Returns *TimeoutError if the
	// deadline passes with fewer bytes read.
	ReadExact(n int) ([]byte, error)

	// ReadUntil reads up to and including the first occurrence of delim.
	ReadUntil(delim byte) ([]byte, error)

	// SetSpeed reconfigures the line rate. Used by the firmware upgrade
	// procedure, which runs the link at a higher baud rate.
	SetSpeed(baud int) error

	// Close releases the underlying channel. Safe to call twice.
	Close() error
}

// ReadDeadliner is implemented by transports whose per-read deadline can be
// adjusted after open. SetReadTimeout returns the previous deadline so a
// caller that tightens it for one phase can restore it afterwards.
type ReadDeadliner interface {
	SetReadTimeout(d time.Duration) (time.Duration, error)
}

// TimeoutError reports that a read deadline passed before the requested
// bytes arrived. Partial data read before the deadline is discarded by the
// caller; the protocol layer resynchronizes by retrying the transaction.
type TimeoutError struct {
	Op   string
	Want int
	Got  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d/%d bytes", e.Op, e.Got, e.Want)
}

// Timeout implements the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout reports whether err is a transport read timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
