// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package upgrade

import "fmt"

// AbortedError reports an unrecoverable condition during a firmware
// transfer. An aborted transfer never commits: the device stays on its
// pre-upgrade firmware and can report a recoverable error state.
type AbortedError struct {
	Phase State
	Cause error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("upgrade aborted during %s: %v", e.Phase, e.Cause)
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}

// VerifyError reports a checksum mismatch between the transferred image
// and what the device holds.
type VerifyError struct {
	Expected uint16
	Reported uint16
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("image verification failed: expected CRC 0x%04X, device reports 0x%04X",
		e.Expected, e.Reported)
}
