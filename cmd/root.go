// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// Bridge connection flags
	bridgeURL         string
	bridgeUsername    string
	bridgeNoSSLVerify bool

	// Shared flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cloudwatcher",
	Short: "AAG CloudWatcher weather station driver",
	Long: `cloudwatcher - driver and tooling for the Lunatico AAG CloudWatcher.

Reads calibrated telemetry (sky and ambient temperature, humidity, wind,
rain, light), controls the relay switch and rain sensor heater, and flashes
firmware through the device bootloader.

Connection modes:
  Serial: --port /dev/ttyUSB0 [--baud 9600]
  Bridge: --url ws://host/path [--username user]

For bridge authentication, the password is read from the
CLOUDWATCHER_PASSWORD environment variable, or prompted interactively if
not set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	rootCmd.PersistentFlags().StringVarP(&bridgeURL, "url", "u", "", "Serial bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&bridgeUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&bridgeNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// newLogger builds the console logger shared by all subcommands.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
