// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetReboot bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the unit's RS232 buffers or reboot it",
	Long: `Clear the unit's serial buffers. With --reboot the microcontroller is
restarted instead, which takes a couple of seconds and prints the firmware
version the unit announces when it comes back up.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetReboot, "reboot", false, "Reboot the microcontroller instead of clearing buffers")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	if resetReboot {
		version, err := session.Reboot()
		if err != nil {
			return fmt.Errorf("reboot: %w", err)
		}
		fmt.Printf("Unit rebooted, firmware version %s\n", version)
		return nil
	}

	if err := session.ResetBuffers(); err != nil {
		return fmt.Errorf("reset buffers: %w", err)
	}
	fmt.Println("RS232 buffers cleared")
	return nil
}
