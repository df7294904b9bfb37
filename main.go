// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne
//
// cloudwatcher - host-side driver and tooling for the Lunatico AAG
// CloudWatcher weather station.

package main

import (
	"os"

	"github.com/TotallyFred/cloudwatcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
