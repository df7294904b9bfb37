// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

// Package cloudwatcher implements the host-side driver for the Lunatico AAG
// CloudWatcher weather station: an exclusive device session running the
// synchronous command/response protocol, and the telemetry decoder mapping
// raw sensor counts to calibrated readings.
package cloudwatcher

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/TotallyFred/cloudwatcher/pkg/aagproto"
	"github.com/TotallyFred/cloudwatcher/pkg/transport"
)

// engine states; the protocol is strictly synchronous so these only ever
// advance within a single Execute call.
type engineState int32

const (
	stateIdle engineState = iota
	stateAwaitingResponse
	stateDecoding
	stateRetrying
)

// Session activities. A single atomic word holds the exclusive-use state so
// there is no window between checking an upgrade guard and claiming the
// command slot where both could slip through.
const (
	activityIdle int32 = iota
	activityCommand
	activityUpgrade
)

// maxConsecutiveTimeouts bounds timeout retries within one Execute call.
// Two timeouts may be absorbed (the device can be slow after a prior
// partial read); the third surfaces as DeviceUnresponsive.
const maxConsecutiveTimeouts = 3

// Stats are cumulative per-session counters.
type Stats struct {
	Commands uint64
	Retries  uint64
	Failures uint64
}

// Session binds one protocol engine to one exclusively-owned transport.
// At most one command is in flight at any time; a concurrent Execute
// returns ErrBusy immediately. A Session is created by Open (or NewSession
// for an injected transport) and must be Closed to release the port.
type Session struct {
	tr    transport.Transport
	table aagproto.CommandTable
	cfg   Config
	log   zerolog.Logger

	activity atomic.Int32
	closed   atomic.Bool
	state    atomic.Int32

	commands atomic.Uint64
	retries  atomic.Uint64
	failures atomic.Uint64

	constants   ElectricalConstants
	constantsOK bool
}

// Option configures a Session at construction.
type Option func(*Session)

// WithLogger injects a structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithCommandTable replaces the built-in command vocabulary, e.g. with a
// table loaded from the vendor TOML file or a synthetic one in tests.
func WithCommandTable(table aagproto.CommandTable) Option {
	return func(s *Session) { s.table = table }
}

// Open validates cfg, acquires the configured endpoint (serial port or
// WebSocket bridge) and returns a ready session. The transport is released
// on every Close path.
func Open(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		tr  transport.Transport
		err error
	)
	if cfg.BridgeURL != "" {
		tr, err = transport.DialBridge(transport.BridgeConfig{
			URL:           cfg.BridgeURL,
			Username:      cfg.BridgeUsername,
			Password:      cfg.BridgePassword,
			SkipTLSVerify: cfg.SkipTLSVerify,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	} else {
		tr, err = transport.OpenSerial(cfg.Port, cfg.Baud, cfg.ReadTimeout)
	}
	if err != nil {
		return nil, err
	}

	s := NewSession(tr, cfg, opts...)
	if cfg.CommandTable != "" {
		table, err := aagproto.LoadTable(cfg.CommandTable)
		if err != nil {
			tr.Close()
			return nil, err
		}
		s.table = table
	}
	return s, nil
}

// NewSession wraps an already-open transport. Used by Open and by tests
// that script a fake transport.
func NewSession(tr transport.Transport, cfg Config, opts ...Option) *Session {
	s := &Session{
		tr:    tr,
		table: aagproto.DefaultTable(),
		cfg:   cfg,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire claims the session for the requested activity. A failed claim
// maps to the error naming what currently holds the session.
func (s *Session) acquire(want int32) error {
	if s.activity.CompareAndSwap(activityIdle, want) {
		return nil
	}
	if s.activity.Load() == activityUpgrade {
		return ErrUpgradeInProgress
	}
	return ErrBusy
}

func (s *Session) release() {
	s.activity.Store(activityIdle)
}

// Close releases the transport. Idempotent; commands issued afterwards
// return ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.tr.Close()
}

// Stats returns the session's cumulative counters.
func (s *Session) Stats() Stats {
	return Stats{
		Commands: s.commands.Load(),
		Retries:  s.retries.Load(),
		Failures: s.failures.Load(),
	}
}

// Table returns the active command table.
func (s *Session) Table() aagproto.CommandTable {
	return s.table
}

// ExecuteNamed looks up a command by name and executes it.
func (s *Session) ExecuteNamed(name string) (*aagproto.Frame, error) {
	cmd, err := s.table.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Execute(cmd)
}

// Execute runs one command through the full request/response cycle with the
// retry and timeout discipline:
//
//   - a malformed response retries the whole round trip, up to RetryCount
//     attempts with no backoff (retries address line noise, not congestion);
//   - a well-framed response carrying unexpected keys is treated as a stale
//     frame from an aborted prior transaction: it is discarded and one extra
//     read is taken before the attempt counts as failed;
//   - response timeouts are tracked separately and bounded by
//     maxConsecutiveTimeouts, surfacing DeviceUnresponsiveError;
//   - transport I/O errors are fatal to the attempt and never retried.
//
// Only one command may be in flight; concurrent calls return ErrBusy and
// calls during a firmware upgrade return ErrUpgradeInProgress.
func (s *Session) Execute(cmd aagproto.Command) (*aagproto.Frame, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if err := s.acquire(activityCommand); err != nil {
		return nil, err
	}
	defer func() {
		s.state.Store(int32(stateIdle))
		s.release()
	}()

	s.commands.Add(1)
	frame, err := s.roundTrip(cmd)
	if err != nil {
		s.failures.Add(1)
	}
	return frame, err
}

func (s *Session) roundTrip(cmd aagproto.Command) (*aagproto.Frame, error) {
	encoded := aagproto.Encode(cmd)
	size := cmd.ResponseSize()

	timeouts := 0
	var lastErr error

	for attempt := 1; attempt <= s.cfg.RetryCount; attempt++ {
		if err := s.tr.Write(encoded); err != nil {
			return nil, fmt.Errorf("write %s: %w", cmd.Name, err)
		}

		s.state.Store(int32(stateAwaitingResponse))
		raw, err := s.tr.ReadExact(size)
		if err != nil {
			if transport.IsTimeout(err) {
				timeouts++
				if timeouts >= maxConsecutiveTimeouts {
					return nil, &DeviceUnresponsiveError{Command: cmd.Name, Timeouts: timeouts}
				}
				s.retries.Add(1)
				s.log.Debug().Str("command", cmd.Name).Int("timeouts", timeouts).
					Msg("response timeout, retrying")
				s.state.Store(int32(stateRetrying))
				attempt-- // timeout retries do not consume the malformed budget
				continue
			}
			return nil, fmt.Errorf("read %s: %w", cmd.Name, err)
		}
		timeouts = 0

		s.state.Store(int32(stateDecoding))
		frame, derr := aagproto.Decode(raw, cmd)
		if derr == nil {
			return frame, nil
		}
		lastErr = derr

		// A well-framed response with the wrong keys is a leftover from a
		// previously aborted transaction. Discard it and take one extra
		// read to resynchronize before charging a retry.
		var mal *aagproto.MalformedError
		if errors.As(derr, &mal) && mal.IsStale() {
			s.log.Debug().Str("command", cmd.Name).Msg("stale frame discarded, re-reading")
			if raw2, err2 := s.tr.ReadExact(size); err2 == nil {
				if frame2, derr2 := aagproto.Decode(raw2, cmd); derr2 == nil {
					return frame2, nil
				}
			}
		}

		s.retries.Add(1)
		s.log.Debug().Str("command", cmd.Name).Int("attempt", attempt).
			Err(derr).Msg("malformed response, retrying")
		s.state.Store(int32(stateRetrying))
	}

	return nil, &ProtocolFailureError{
		Command:  cmd.Name,
		Attempts: s.cfg.RetryCount,
		Last:     lastErr,
	}
}
