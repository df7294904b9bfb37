// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package aagproto

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Command describes one entry of the vendor command table: the wire token,
// the number of data blocks the device answers with, the block keys expected
// in order, and the response deadline. Commands are immutable values; the
// table they live in is injected into the session at construction so tests
// can substitute synthetic vocabularies.
type Command struct {
	// Name is the stable caller-facing identifier, e.g. "version".
	Name string

	// Token is the ASCII token written to the wire, e.g. "B!".
	Token string

	// Blocks is the number of data blocks preceding the handshake block.
	Blocks int

	// Keys lists the expected block key per data block, without the leading
	// '!'. A nil or empty Keys accepts any key (used where the device picks
	// the key at runtime, e.g. "h" vs "hh").
	Keys []string

	// Timeout is the response deadline for this command.
	Timeout time.Duration
}

// ResponseSize returns the total frame size in bytes, handshake included.
func (c Command) ResponseSize() int {
	return (c.Blocks + 1) * BlockSize
}

// CommandTable maps command names to their wire definitions.
type CommandTable map[string]Command

// Lookup returns the named command or an error naming the missing entry.
func (t CommandTable) Lookup(name string) (Command, error) {
	cmd, ok := t[name]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", name)
	}
	return cmd, nil
}

// Built-in command names.
const (
	CmdName                = "name"
	CmdVersion             = "version"
	CmdSerialNumber        = "serial_number"
	CmdReset               = "reset"
	CmdAnalogValues        = "analog_values"
	CmdInternalErrors      = "internal_errors"
	CmdRainFrequency       = "rain_frequency"
	CmdSwitchStatus        = "switch_status"
	CmdSwitchOpen          = "switch_open"
	CmdSwitchClose         = "switch_close"
	CmdHeaterPWM           = "heater_pwm"
	CmdSkyIRTemperature    = "sky_ir_temperature"
	CmdIRSensorTemperature = "ir_sensor_temperature"
	CmdElectricalConstants = "electrical_constants"
	CmdWindSensorPresence  = "wind_sensor_presence"
	CmdWindSensor          = "wind_sensor"
	CmdHumiditySensor      = "humidity_sensor"
	CmdTemperatureSensor   = "temperature_sensor"
)

// DefaultTable returns the command vocabulary from the vendor protocol
// document (parts 1-4 plus addenda). Callers may load a replacement table
// from a TOML file with LoadTable.
func DefaultTable() CommandTable {
	def := func(name, token string, blocks int, keys ...string) Command {
		return Command{Name: name, Token: token, Blocks: blocks, Keys: keys, Timeout: DefaultTimeout}
	}
	return CommandTable{
		CmdName:                def(CmdName, "A!", 1, "N"),
		CmdVersion:             def(CmdVersion, "B!", 1, "V"),
		CmdSerialNumber:        def(CmdSerialNumber, "K!", 1, "K"),
		CmdReset:               def(CmdReset, "z!", 0),
		CmdAnalogValues:        def(CmdAnalogValues, "C!", 3, "6", "4", "5"),
		CmdInternalErrors:      def(CmdInternalErrors, "D!", 4, "E1", "E2", "E3", "E4"),
		CmdRainFrequency:       def(CmdRainFrequency, "E!", 1, "R"),
		CmdSwitchStatus:        def(CmdSwitchStatus, "F!", 1), // key is X or Y
		CmdSwitchOpen:          def(CmdSwitchOpen, "G!", 1, "X"),
		CmdSwitchClose:         def(CmdSwitchClose, "H!", 1, "Y"),
		CmdHeaterPWM:           def(CmdHeaterPWM, "Q!", 1, "Q"),
		CmdSkyIRTemperature:    def(CmdSkyIRTemperature, "S!", 1, "1"),
		CmdIRSensorTemperature: def(CmdIRSensorTemperature, "T!", 1, "2"),
		CmdElectricalConstants: def(CmdElectricalConstants, "M!", 1, "M"),
		CmdWindSensorPresence:  def(CmdWindSensorPresence, "v!", 1, "v"),
		CmdWindSensor:          def(CmdWindSensor, "V!", 1, "w"),
		CmdHumiditySensor:      def(CmdHumiditySensor, "h!", 1), // key is h or hh
		CmdTemperatureSensor:   def(CmdTemperatureSensor, "t!", 1), // key is t or th
	}
}

// SetHeaterPWMCommand builds the set-PWM command for the capacitive rain
// sensor heater. The value must be in (0, 1024); the device echoes the new
// setting in a "!Q" block.
func SetHeaterPWMCommand(value int) (Command, error) {
	if value <= 0 || value >= 1024 {
		return Command{}, fmt.Errorf("pwm value %d out of range (1-1023)", value)
	}
	return Command{
		Name:    CmdHeaterPWM,
		Token:   fmt.Sprintf("P%04d!", value),
		Blocks:  1,
		Keys:    []string{"Q"},
		Timeout: DefaultTimeout,
	}, nil
}

type tableFile struct {
	Command []tableEntry `toml:"command"`
}

type tableEntry struct {
	Name    string   `toml:"name"`
	Token   string   `toml:"token"`
	Blocks  int      `toml:"blocks"`
	Keys    []string `toml:"keys"`
	Timeout string   `toml:"timeout"`
}

// LoadTable reads a command table from a TOML file. Entries missing a
// timeout inherit DefaultTimeout. The file replaces the built-in table
// wholesale; it is not merged.
func LoadTable(path string) (CommandTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("command table load failed (%s): %w", path, err)
	}
	var file tableFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("command table parse failed (%s): %w", path, err)
	}
	if len(file.Command) == 0 {
		return nil, fmt.Errorf("command table %s defines no commands", path)
	}

	table := make(CommandTable, len(file.Command))
	for _, e := range file.Command {
		if e.Name == "" || e.Token == "" {
			return nil, fmt.Errorf("command table %s: entry missing name or token", path)
		}
		if e.Blocks < 0 {
			return nil, fmt.Errorf("command table %s: %s has negative block count", path, e.Name)
		}
		if len(e.Keys) > 0 && len(e.Keys) != e.Blocks {
			return nil, fmt.Errorf("command table %s: %s declares %d keys for %d blocks",
				path, e.Name, len(e.Keys), e.Blocks)
		}
		timeout := DefaultTimeout
		if e.Timeout != "" {
			timeout, err = time.ParseDuration(e.Timeout)
			if err != nil {
				return nil, fmt.Errorf("command table %s: %s has bad timeout: %w", path, e.Name, err)
			}
		}
		table[e.Name] = Command{
			Name:    e.Name,
			Token:   e.Token,
			Blocks:  e.Blocks,
			Keys:    e.Keys,
			Timeout: timeout,
		}
	}
	return table, nil
}
