// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package aagproto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame is one validated response from the device: the raw wire bytes and
// the data blocks extracted from them, handshake stripped. Frames are
// created by Decode and are read-only afterwards.
type Frame struct {
	raw       []byte
	blocks    [][]byte
	timestamp time.Time
}

// Raw returns the full frame bytes as read from the wire.
func (f *Frame) Raw() []byte {
	return f.raw
}

// BlockCount returns the number of data blocks (handshake excluded).
func (f *Frame) BlockCount() int {
	return len(f.blocks)
}

// Block returns the i-th 15-byte data block.
func (f *Frame) Block(i int) []byte {
	return f.blocks[i]
}

// Key returns the block key of the i-th data block: the run of characters
// after the '!' marker and before the first digit, space or sign. Keys like
// "E1" that end in a digit are special-cased by length-2 lookahead in the
// vendor vocabulary; callers compare with the expected key via HasKey.
func (f *Frame) Key(i int) string {
	block := f.blocks[i]
	if len(block) < 2 || block[0] != BlockMarker {
		return ""
	}
	// Longest expected key is two characters ("E1", "hh", "th").
	if len(block) >= 3 && isKeyByte(block[2]) {
		return string(block[1:3])
	}
	return string(block[1:2])
}

// HasKey reports whether block i carries the given key.
func (f *Frame) HasKey(i int, key string) bool {
	block := f.blocks[i]
	prefix := string(BlockMarker) + key
	if len(block) < len(prefix) {
		return false
	}
	return string(block[:len(prefix)]) == prefix
}

// Timestamp returns the frame's decode time.
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// String extracts the i-th block's payload as a trimmed ASCII string,
// verifying the block starts with '!' followed by the given key.
func (f *Frame) String(i int, key string) (string, error) {
	if i < 0 || i >= len(f.blocks) {
		return "", fmt.Errorf("block index %d out of range (%d blocks)", i, len(f.blocks))
	}
	return ExtractString(f.blocks[i], key)
}

// Int extracts the i-th block's payload as an integer.
func (f *Frame) Int(i int, key string) (int, error) {
	if i < 0 || i >= len(f.blocks) {
		return 0, fmt.Errorf("block index %d out of range (%d blocks)", i, len(f.blocks))
	}
	return ExtractInt(f.blocks[i], key)
}

// ExtractString verifies that block starts with '!' + key and returns the
// remainder with surrounding whitespace trimmed.
func ExtractString(block []byte, key string) (string, error) {
	prefix := string(BlockMarker) + key
	if len(block) < len(prefix) || string(block[:len(prefix)]) != prefix {
		return "", fmt.Errorf("block %q does not carry key %q", block, key)
	}
	return strings.TrimSpace(string(block[len(prefix):])), nil
}

// ExtractInt verifies the block key and parses the payload as a decimal
// integer.
func ExtractInt(block []byte, key string) (int, error) {
	s, err := ExtractString(block, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("block %q payload is not an integer: %w", block, err)
	}
	return v, nil
}

// isKeyByte reports whether b can be part of a multi-character block key.
// Keys are letters optionally followed by one digit (E1..E4); values are
// space-padded decimals, so a digit directly after a letter belongs to the
// key while a digit after a space belongs to the value.
func isKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= '1' && b <= '4':
		return true
	}
	return false
}
