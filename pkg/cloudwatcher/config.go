// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cloudwatcher

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/TotallyFred/cloudwatcher/pkg/aagproto"
)

// Config holds the session parameters. Exactly one of Port or BridgeURL
// must be set.
type Config struct {
	// Port is the serial device path, e.g. /dev/ttyUSB0.
	Port string

	// Baud is the line rate for normal operation. The vendor protocol
	// fixes this at 9600; it is configurable for bench setups only.
	Baud int

	// BridgeURL reaches a serial-over-WebSocket bridge instead of a local
	// port (ws:// or wss://).
	BridgeURL      string
	BridgeUsername string
	BridgePassword string
	SkipTLSVerify  bool

	// ReadTimeout bounds every transport read. WriteTimeout bounds bridge
	// writes; local serial writes complete or fail at the OS driver level.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RetryCount bounds full round-trip retries on malformed responses.
	RetryCount int

	// CommandTable optionally names a TOML file replacing the built-in
	// command vocabulary.
	CommandTable string
}

// DefaultConfig returns the vendor-documented line parameters.
func DefaultConfig() Config {
	return Config{
		Baud:         aagproto.DefaultBaud,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		RetryCount:   3,
	}
}

// Validate checks the configuration for a usable endpoint and sane limits.
func (c Config) Validate() error {
	if c.Port == "" && c.BridgeURL == "" {
		return fmt.Errorf("config: either port or bridge_url must be set")
	}
	if c.Port != "" && c.BridgeURL != "" {
		return fmt.Errorf("config: port and bridge_url are mutually exclusive")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("config: baud must be positive, got %d", c.Baud)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.RetryCount < 1 {
		return fmt.Errorf("config: retry_count must be at least 1, got %d", c.RetryCount)
	}
	return nil
}

type fileConfig struct {
	Port           string `toml:"port"`
	Baud           int    `toml:"baud"`
	BridgeURL      string `toml:"bridge_url"`
	BridgeUsername string `toml:"bridge_username"`
	SkipTLSVerify  bool   `toml:"skip_tls_verify"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	RetryCount     int    `toml:"retry_count"`
	CommandTable   string `toml:"command_table"`
}

// LoadConfig reads a TOML config file and fills defaults for anything
// unset. The result is not validated here: command-line flags may still
// complete it (a file carrying only timeouts plus --port is fine), so
// Validate runs at session open, after the merge. The bridge password is
// never read from the file; it comes from the environment or an
// interactive prompt.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg := DefaultConfig()
	cfg.Port = file.Port
	cfg.BridgeURL = file.BridgeURL
	cfg.BridgeUsername = file.BridgeUsername
	cfg.SkipTLSVerify = file.SkipTLSVerify
	cfg.CommandTable = file.CommandTable
	if file.Baud != 0 {
		cfg.Baud = file.Baud
	}
	if file.RetryCount != 0 {
		cfg.RetryCount = file.RetryCount
	}
	if file.ReadTimeout != "" {
		cfg.ReadTimeout, err = time.ParseDuration(file.ReadTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: bad read_timeout: %w", path, err)
		}
	}
	if file.WriteTimeout != "" {
		cfg.WriteTimeout, err = time.ParseDuration(file.WriteTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: bad write_timeout: %w", path, err)
		}
	}

	return cfg, nil
}
