// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:       "switch [open|close|status]",
	Short:     "Control the unit's relay switch",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"open", "close", "status"},
	RunE:      runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

// relay is the slice of the device session the switch command drives.
type relay interface {
	OpenSwitch() (bool, error)
	CloseSwitch() (bool, error)
	SwitchOpen() (bool, error)
}

// relayState runs one switch action and reports whether the relay ended up
// open. CloseSwitch confirms the closed state, so its result is inverted
// into the open convention the other two calls share.
func relayState(r relay, action string) (bool, error) {
	switch action {
	case "open":
		return r.OpenSwitch()
	case "close":
		closed, err := r.CloseSwitch()
		return !closed, err
	case "status":
		return r.SwitchOpen()
	default:
		return false, fmt.Errorf("unknown action %q", action)
	}
}

func runSwitch(cmd *cobra.Command, args []string) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	open, err := relayState(session, args[0])
	if err != nil {
		return fmt.Errorf("switch %s: %w", args[0], err)
	}

	if open {
		fmt.Println("Switch is open")
	} else {
		fmt.Println("Switch is closed")
	}
	return nil
}
