// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/TotallyFred/cloudwatcher/pkg/cloudwatcher"
)

// buildConfig merges the config file (if given) with command-line flags.
// Flags win over the file.
func buildConfig() (cloudwatcher.Config, error) {
	cfg := cloudwatcher.DefaultConfig()
	if configPath != "" {
		loaded, err := cloudwatcher.LoadConfig(configPath)
		if err != nil {
			return cloudwatcher.Config{}, err
		}
		cfg = loaded
	}

	if portName != "" {
		cfg.Port = portName
		cfg.BridgeURL = ""
	}
	if baudRate != 0 && rootCmd.PersistentFlags().Changed("baud") {
		cfg.Baud = baudRate
	}
	if bridgeURL != "" {
		cfg.BridgeURL = bridgeURL
		cfg.Port = ""
	}
	if bridgeUsername != "" {
		cfg.BridgeUsername = bridgeUsername
	}
	if bridgeNoSSLVerify {
		cfg.SkipTLSVerify = true
	}

	if cfg.BridgeURL != "" && cfg.BridgeUsername != "" {
		password, err := getPassword()
		if err != nil {
			return cloudwatcher.Config{}, err
		}
		cfg.BridgePassword = password
	}

	return cfg, nil
}

// openSession builds the configuration and opens the device session.
func openSession() (*cloudwatcher.Session, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}
	return cloudwatcher.Open(cfg, cloudwatcher.WithLogger(newLogger()))
}

// getPassword retrieves the bridge password from the environment or
// prompts for it without echo.
func getPassword() (string, error) {
	if pw := os.Getenv("CLOUDWATCHER_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// connectionInfo describes the active endpoint for display.
func connectionInfo(cfg cloudwatcher.Config) string {
	if cfg.BridgeURL != "" {
		return fmt.Sprintf("Bridge: %s", cfg.BridgeURL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud)
}
