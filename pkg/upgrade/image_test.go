// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package upgrade

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewImage(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantBlocks int
	}{
		{"single partial block", 10, 1},
		{"exactly one block", BlockSize, 1},
		{"one byte over", BlockSize + 1, 2},
		{"several blocks", 3*BlockSize + 17, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i)
			}

			img, err := NewImage(data)
			if err != nil {
				t.Fatalf("NewImage failed: %v", err)
			}
			if img.Len() != tt.size {
				t.Errorf("Len() = %d, want %d", img.Len(), tt.size)
			}
			if img.Blocks() != tt.wantBlocks {
				t.Errorf("Blocks() = %d, want %d", img.Blocks(), tt.wantBlocks)
			}

			// Reassembling the blocks yields the original data plus 0xFF
			// padding, the flash erase value.
			var joined []byte
			for i := 0; i < img.Blocks(); i++ {
				block := img.Block(i)
				if len(block) != BlockSize {
					t.Fatalf("Block(%d) has %d bytes, want %d", i, len(block), BlockSize)
				}
				joined = append(joined, block...)
			}
			if !bytes.Equal(joined[:tt.size], data) {
				t.Error("block contents do not match the image")
			}
			for i := tt.size; i < len(joined); i++ {
				if joined[i] != 0xFF {
					t.Fatalf("padding byte %d = 0x%02X, want 0xFF", i, joined[i])
				}
			}
		})
	}
}

func TestNewImage_Empty(t *testing.T) {
	if _, err := NewImage(nil); err == nil {
		t.Error("NewImage(nil) succeeded, want error")
	}
	if _, err := NewImage([]byte{}); err == nil {
		t.Error("NewImage(empty) succeeded, want error")
	}
}

func TestImageCRC(t *testing.T) {
	a1, err := NewImage([]byte("firmware payload"))
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	a2, _ := NewImage([]byte("firmware payload"))
	b, _ := NewImage([]byte("firmware payloaD"))

	if a1.CRC() != a2.CRC() {
		t.Error("CRC not deterministic for identical images")
	}
	if a1.CRC() == b.CRC() {
		t.Error("CRC identical for different images")
	}
}

func TestLoadImage(t *testing.T) {
	t.Run("round trip through disk", func(t *testing.T) {
		data := []byte("not a real firmware image, but enough for the loader")
		path := filepath.Join(t.TempDir(), "firmware.has")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write firmware file: %v", err)
		}

		img, err := LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage failed: %v", err)
		}
		if img.Len() != len(data) {
			t.Errorf("Len() = %d, want %d", img.Len(), len(data))
		}

		direct, _ := NewImage(data)
		if img.CRC() != direct.CRC() {
			t.Error("loaded image CRC differs from in-memory image")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadImage(filepath.Join(t.TempDir(), "absent.has")); err == nil {
			t.Error("LoadImage of missing file succeeded")
		}
	})
}
