// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cloudwatcher

import (
	"github.com/TotallyFred/cloudwatcher/pkg/upgrade"
)

// BeginUpgrade starts a firmware transfer on this session's transport.
// While the transfer is live every telemetry command returns
// ErrUpgradeInProgress; the guard lifts when the transfer reaches a
// terminal state. The session installs its own finish hook, so callers
// must not pass upgrade.WithFinishFunc.
func (s *Session) BeginUpgrade(img *upgrade.Image, opts ...upgrade.Option) (*upgrade.Transfer, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if err := s.acquire(activityUpgrade); err != nil {
		return nil, err
	}

	opts = append([]upgrade.Option{upgrade.WithLogger(s.log)}, opts...)
	opts = append(opts, upgrade.WithFinishFunc(s.release))
	transfer, err := upgrade.New(s.tr, opts...).Begin(img)
	if err != nil {
		s.release()
		return nil, err
	}
	return transfer, nil
}
