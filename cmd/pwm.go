// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var pwmCmd = &cobra.Command{
	Use:   "pwm [value]",
	Short: "Read or set the rain sensor heater PWM duty cycle",
	Long: `Without an argument, print the current heater PWM duty cycle.
With a value between 1 and 1023, set it and print the duty cycle the
unit reports back.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPWM,
}

func init() {
	rootCmd.AddCommand(pwmCmd)
}

func runPWM(cmd *cobra.Command, args []string) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	if len(args) == 0 {
		value, err := session.HeaterPWM()
		if err != nil {
			return fmt.Errorf("read heater PWM: %w", err)
		}
		fmt.Printf("Heater PWM: %d\n", value)
		return nil
	}

	want, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid PWM value %q", args[0])
	}
	got, err := session.SetHeaterPWM(want)
	if err != nil {
		return fmt.Errorf("set heater PWM: %w", err)
	}
	fmt.Printf("Heater PWM set to %d\n", got)
	return nil
}
