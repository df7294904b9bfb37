// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Serial drives a local serial port via go.bug.st/serial. The port is
// acquired exclusively at open time; a second open of the same device fails
// at the OS level, which enforces the one-session-per-port rule.
type Serial struct {
	port        serial.Port
	portName    string
	readTimeout time.Duration
	closed      bool
}

// OpenSerial opens portName at the given baud rate, 8N1, with the given
// per-read deadline.
func OpenSerial(portName string, baud int, readTimeout time.Duration) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &Serial{port: port, portName: portName, readTimeout: readTimeout}, nil
}

// Write sends the full buffer. go.bug.st/serial exposes no write deadline;
// a serial write completes or fails at the OS driver level, so the per-write
// timeout only applies on the bridge transport.
func (s *Serial) Write(p []byte) error {
	n, err := s.port.Write(p)
	if err != nil {
		return fmt.Errorf("serial write on %s: %w", s.portName, err)
	}
	if n != len(p) {
		return fmt.Errorf("serial write on %s: short write %d/%d", s.portName, n, len(p))
	}
	return nil
}

// ReadExact accumulates exactly n bytes. go.bug.st/serial signals an
// expired read deadline with a zero-byte read and a nil error; a read that
// makes no progress therefore ends the call with a *TimeoutError.
func (s *Serial) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		r, err := s.port.Read(buf[got:])
		if err != nil {
			return nil, fmt.Errorf("serial read on %s: %w", s.portName, err)
		}
		if r == 0 {
			return nil, &TimeoutError{Op: "read", Want: n, Got: got}
		}
		got += r
	}
	return buf, nil
}

func (s *Serial) ReadUntil(delim byte) ([]byte, error) {
	var out []byte
	one := make([]byte, 1)
	for {
		r, err := s.port.Read(one)
		if err != nil {
			return nil, fmt.Errorf("serial read on %s: %w", s.portName, err)
		}
		if r == 0 {
			return nil, &TimeoutError{Op: "read-until", Want: -1, Got: len(out)}
		}
		out = append(out, one[0])
		if one[0] == delim {
			return out, nil
		}
	}
}

// SetReadTimeout swaps the per-read deadline and returns the previous one.
func (s *Serial) SetReadTimeout(d time.Duration) (time.Duration, error) {
	prev := s.readTimeout
	if err := s.port.SetReadTimeout(d); err != nil {
		return prev, fmt.Errorf("serial read timeout on %s: %w", s.portName, err)
	}
	s.readTimeout = d
	return prev, nil
}

func (s *Serial) SetSpeed(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := s.port.SetMode(mode); err != nil {
		return fmt.Errorf("serial mode change on %s: %w", s.portName, err)
	}
	return nil
}

func (s *Serial) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
