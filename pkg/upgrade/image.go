// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

// Package upgrade implements the CloudWatcher firmware upgrade procedure:
// a chunked, acknowledged transfer into the device bootloader with an
// explicit verify step before commit. The transfer runs over the same
// serial link as telemetry but at the bootloader baud rate and with its
// own framing.
package upgrade

import (
	"fmt"
	"os"

	"github.com/sigurn/crc16"
)

// BlockSize is the fixed transfer unit. The final block is padded with
// 0xFF, the flash erase value.
const BlockSize = 64

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Image is a firmware image prepared for transfer: the padded block
// sequence and the checksum the device must report back during
// verification. Immutable once created.
type Image struct {
	data   []byte // padded to a whole number of blocks
	rawLen int
	crc    uint16
}

// NewImage wraps firmware bytes. The image is padded to a whole number of
// blocks and its CRC computed over the padded contents, which is what the
// device ends up holding.
func NewImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("firmware image is empty")
	}

	padded := make([]byte, len(data))
	copy(padded, data)
	for len(padded)%BlockSize != 0 {
		padded = append(padded, 0xFF)
	}

	return &Image{
		data:   padded,
		rawLen: len(data),
		crc:    crc16.Checksum(padded, crcTable),
	}, nil
}

// LoadImage reads a firmware file (.has) from disk.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("firmware load failed (%s): %w", path, err)
	}
	return NewImage(data)
}

// Len returns the unpadded firmware size in bytes.
func (im *Image) Len() int {
	return im.rawLen
}

// Blocks returns the number of transfer blocks.
func (im *Image) Blocks() int {
	return len(im.data) / BlockSize
}

// Block returns the i-th block, always exactly BlockSize bytes.
func (im *Image) Block(i int) []byte {
	return im.data[i*BlockSize : (i+1)*BlockSize]
}

// CRC returns the CRC-16/CCITT checksum over the padded image.
func (im *Image) CRC() uint16 {
	return im.crc
}
