// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cloudwatcher

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the session. These are never retried
// internally: Busy and UpgradeInProgress are caller sequencing mistakes,
// Closed means the transport has been released.
var (
	ErrBusy              = errors.New("command already in flight")
	ErrUpgradeInProgress = errors.New("firmware upgrade in progress")
	ErrSessionClosed     = errors.New("session closed")
)

// DeviceUnresponsiveError reports consecutive response timeouts exhausting
// the timeout retry budget. The usual cause is a dead cable or an unpowered
// unit, not line noise.
type DeviceUnresponsiveError struct {
	Command  string
	Timeouts int
}

func (e *DeviceUnresponsiveError) Error() string {
	return fmt.Sprintf("device not responding to %s after %d timeouts", e.Command, e.Timeouts)
}

// ProtocolFailureError reports that every round-trip attempt for a command
// produced a malformed response. Last carries the final decode error.
type ProtocolFailureError struct {
	Command  string
	Attempts int
	Last     error
}

func (e *ProtocolFailureError) Error() string {
	return fmt.Sprintf("protocol failure on %s after %d attempts: %v", e.Command, e.Attempts, e.Last)
}

func (e *ProtocolFailureError) Unwrap() error {
	return e.Last
}
