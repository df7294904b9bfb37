// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package upgrade

import (
	"time"

	"github.com/rs/zerolog"
)

// Progress is passed to the progress callback after every Step.
type Progress struct {
	State       State
	Block       int // next block to send (equals TotalBlocks when done)
	TotalBlocks int
	Percent     float64
	Elapsed     time.Duration
}

// ProgressFunc receives transfer progress. Implementations should return
// quickly; they run on the caller's Step goroutine.
type ProgressFunc func(Progress)

type config struct {
	retries      int
	blockTimeout time.Duration
	progress     ProgressFunc
	log          zerolog.Logger
	finish       func()
}

func defaultConfig() config {
	return config{
		retries:      3,
		blockTimeout: 5 * time.Second,
		log:          zerolog.Nop(),
	}
}

// Option configures an Upgrader.
type Option func(*config)

// WithRetries bounds per-block resends and handshake attempts.
func WithRetries(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.retries = n
		}
	}
}

// WithBlockTimeout sets the per-block acknowledgment deadline.
func WithBlockTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.blockTimeout = d
		}
	}
}

// WithProgressFunc sets a progress callback.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(c *config) { c.progress = fn }
}

// WithLogger injects a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithFinishFunc registers a hook run once when the transfer reaches a
// terminal state, whichever it is. The session uses this to lift its
// upgrade-in-progress guard.
func WithFinishFunc(fn func()) Option {
	return func(c *config) { c.finish = fn }
}
