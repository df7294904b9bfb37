// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package aagproto

import (
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomCommand picks a command from the built-in table.
func randomCommand(rng *rand.Rand, table CommandTable) Command {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	return table[names[rng.Intn(len(names))]]
}

// TestFuzzDecode_RandomBytes feeds random byte buffers of arbitrary length
// to the decoder and verifies it never panics
func TestFuzzDecode_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	table := DefaultTable()
	for i := 0; i < rounds; i++ {
		cmd := randomCommand(rng, table)

		length := rng.Intn(256)
		raw := make([]byte, length)
		rng.Read(raw)

		// Decode must reject or accept, never panic.
		frame, err := Decode(raw, cmd)
		if err == nil && frame == nil {
			t.Errorf("Round %d: Decode returned nil frame and nil error", i)
		}
	}
}

// TestFuzzDecode_RandomWellFormed builds random well-formed frames for each
// command and verifies they decode with the payloads intact
func TestFuzzDecode_RandomWellFormed(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	table := DefaultTable()
	for i := 0; i < rounds; i++ {
		cmd := randomCommand(rng, table)
		if len(cmd.Keys) == 0 {
			continue // runtime-keyed and zero-block commands are covered elsewhere
		}

		values := make([]int, cmd.Blocks)
		blocks := make([][]byte, cmd.Blocks)
		for j := 0; j < cmd.Blocks; j++ {
			values[j] = rng.Intn(65536)
			blocks[j] = dataBlock(cmd.Keys[j], strconv.Itoa(values[j]))
		}

		frame, err := Decode(responseFrame(blocks...), cmd)
		if err != nil {
			t.Errorf("Round %d: Decode(%s) failed: %v", i, cmd.Name, err)
			continue
		}
		for j := 0; j < cmd.Blocks; j++ {
			got, err := frame.Int(j, cmd.Keys[j])
			if err != nil {
				t.Errorf("Round %d: Int(%d, %q) failed: %v", i, j, cmd.Keys[j], err)
				continue
			}
			if got != values[j] {
				t.Errorf("Round %d: block %d = %d, want %d", i, j, got, values[j])
			}
		}
	}
}

// TestFuzzDecode_CorruptedFrames corrupts one byte of a valid frame and
// verifies the decoder reports a MalformedError or survives the corruption
func TestFuzzDecode_CorruptedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	table := DefaultTable()
	version, _ := table.Lookup(CmdVersion)

	for i := 0; i < rounds; i++ {
		raw := responseFrame(dataBlock("V", strconv.Itoa(rng.Intn(100))))

		idx := rng.Intn(len(raw))
		raw[idx] ^= byte(rng.Intn(255) + 1)

		frame, err := Decode(raw, version)
		if err == nil {
			// Corruption of payload padding can leave the frame valid.
			if frame == nil {
				t.Errorf("Round %d: nil frame without error", i)
			}
			continue
		}
		var mal *MalformedError
		if !errors.As(err, &mal) {
			t.Errorf("Round %d: error type = %T, want *MalformedError", i, err)
		}
	}
}

// TestFuzzExtract_RandomBlocks runs the block extractors over random bytes
// and verifies they never panic
func TestFuzzExtract_RandomBlocks(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	keys := []string{"V", "N", "K", "R", "Q", "1", "2", "E1", "hh", "th", "w", "v"}
	for i := 0; i < rounds; i++ {
		block := make([]byte, rng.Intn(BlockSize*2))
		rng.Read(block)
		key := keys[rng.Intn(len(keys))]

		ExtractString(block, key)
		ExtractInt(block, key)
		IsHandshakeBlock(block)
	}
}
