// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

// Package aagproto implements the AAG CloudWatcher serial wire format.
//
// The CloudWatcher speaks a synchronous ASCII command/response protocol.
// Commands are short tokens terminated by '!' (e.g. "B!"). Every response
// consists of zero or more 15-byte data blocks followed by a single 15-byte
// handshake block that terminates the frame. Data blocks start with '!'
// followed by a one- or two-character key identifying the field, with the
// remainder of the block carrying an ASCII-decimal value (or, for the
// electrical-constants block, packed byte pairs).
//
// This package provides the frame codec (encoding commands, decoding and
// validating response frames) and the command table. It owns no I/O.
package aagproto

import "time"

// Wire framing
const (
	// BlockSize is the fixed size of every response block, data and
	// handshake alike.
	BlockSize = 15

	// BlockMarker is the first byte of every data block.
	BlockMarker = '!'
)

// Line parameters
const (
	DefaultBaud = 9600
	UpgradeBaud = 57600
)

// DefaultTimeout is the per-command response deadline used by the built-in
// command table.
const DefaultTimeout = 2 * time.Second

// handshakeBlock terminates every response frame:
// '!' 0x11 followed by twelve spaces and an ASCII '0'.
var handshakeBlock = [BlockSize]byte{
	0x21, 0x11,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x30,
}

// HandshakeBlock returns a copy of the 15-byte handshake block that closes
// every CloudWatcher response.
func HandshakeBlock() []byte {
	b := handshakeBlock
	return b[:]
}

// IsHandshakeBlock reports whether b is exactly the handshake block.
func IsHandshakeBlock(b []byte) bool {
	if len(b) != BlockSize {
		return false
	}
	for i, v := range handshakeBlock {
		if b[i] != v {
			return false
		}
	}
	return true
}
