// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device identity",
	Long: `Read and display the unit name, firmware version and serial number.

Also reports the device's internal protocol error counters, which are
useful when diagnosing a noisy line.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	name, err := session.InternalName()
	if err != nil {
		return err
	}
	version, err := session.FirmwareVersion()
	if err != nil {
		return err
	}
	serial, err := session.SerialNumber()
	if err != nil {
		return err
	}
	internal, err := session.InternalErrors()
	if err != nil {
		return err
	}

	fmt.Printf("Name:     %s\n", name)
	fmt.Printf("Firmware: %s\n", version)
	fmt.Printf("Serial:   %s\n", serial)
	fmt.Printf("Internal errors: addr1=%d cmd=%d addr2=%d pec=%d\n",
		internal.FirstAddressByteErrors, internal.CommandByteErrors,
		internal.SecondAddressByteErrors, internal.PECByteErrors)
	return nil
}
