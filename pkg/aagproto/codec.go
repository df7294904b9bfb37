// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package aagproto

import (
	"fmt"
	"time"
)

// Encode renders a command to its wire bytes. Encoding is total: any
// command value produces its token verbatim.
func Encode(cmd Command) []byte {
	return []byte(cmd.Token)
}

// Decode validates raw response bytes against the command in flight and
// splits them into data blocks. Validation order: total length, handshake
// terminator, per-block '!' markers, expected block keys. Any failure
// returns a *MalformedError carrying the raw bytes.
func Decode(raw []byte, cmd Command) (*Frame, error) {
	want := cmd.ResponseSize()
	if len(raw) != want {
		return nil, &MalformedError{
			Reason: ReasonBadLength,
			Raw:    raw,
			Detail: fmt.Sprintf("got %d bytes, expected %d", len(raw), want),
		}
	}

	last := raw[len(raw)-BlockSize:]
	if !IsHandshakeBlock(last) {
		return nil, &MalformedError{
			Reason: ReasonBadHandshake,
			Raw:    raw,
			Detail: fmt.Sprintf("trailing block %q is not the handshake", last),
		}
	}

	blocks := make([][]byte, 0, cmd.Blocks)
	for i := 0; i < cmd.Blocks; i++ {
		block := raw[i*BlockSize : (i+1)*BlockSize]
		if block[0] != BlockMarker {
			return nil, &MalformedError{
				Reason: ReasonBadMarker,
				Raw:    raw,
				Detail: fmt.Sprintf("block %d starts with 0x%02X", i, block[0]),
			}
		}
		blocks = append(blocks, block)
	}

	frame := &Frame{raw: raw, blocks: blocks, timestamp: time.Now()}
	if len(cmd.Keys) > 0 {
		for i, key := range cmd.Keys {
			if !frame.HasKey(i, key) {
				return nil, &MalformedError{
					Reason: ReasonKeyMismatch,
					Raw:    raw,
					Detail: fmt.Sprintf("block %d carries key %q, expected %q", i, frame.Key(i), key),
				}
			}
		}
	}

	return frame, nil
}
