// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package aagproto

import "fmt"

// MalformedReason classifies why a frame failed structural validation.
type MalformedReason int

const (
	// ReasonBadLength means the byte count does not match the command's
	// expected frame size.
	ReasonBadLength MalformedReason = iota

	// ReasonBadHandshake means the trailing handshake block is missing or
	// corrupt.
	ReasonBadHandshake

	// ReasonBadMarker means a data block does not start with '!'.
	ReasonBadMarker

	// ReasonKeyMismatch means the frame is structurally sound but a block
	// carries a key the in-flight command does not expect. This is the
	// stale-response signature after a prior aborted transaction.
	ReasonKeyMismatch
)

func (r MalformedReason) String() string {
	switch r {
	case ReasonBadLength:
		return "bad length"
	case ReasonBadHandshake:
		return "bad handshake"
	case ReasonBadMarker:
		return "bad block marker"
	case ReasonKeyMismatch:
		return "unexpected block key"
	default:
		return "unknown"
	}
}

// MalformedError reports a structurally invalid response frame. Malformed
// input is a first-class decode outcome: Decode returns it, never panics.
// The offending raw bytes are carried for diagnostics.
type MalformedError struct {
	Reason MalformedReason
	Raw    []byte
	Detail string
}

func (e *MalformedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("malformed frame (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("malformed frame (%s)", e.Reason)
}

// IsStale reports whether the frame looks like a leftover response from a
// previous transaction: well-framed but carrying the wrong block keys.
func (e *MalformedError) IsStale() bool {
	return e.Reason == ReasonKeyMismatch
}
