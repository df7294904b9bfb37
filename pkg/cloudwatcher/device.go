// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cloudwatcher

import (
	"fmt"
	"time"

	"github.com/TotallyFred/cloudwatcher/pkg/aagproto"
)

// AnemometerModel selects the wind speed calibration. The black model
// needs an offset and scale; the old grey model reports km/h directly.
type AnemometerModel int

const (
	AnemometerBlack AnemometerModel = iota
	AnemometerGrey
)

// AnalogValues are the three raw DAC readings from the analog-values
// command, each in [0, 1023].
type AnalogValues struct {
	ZenerVoltage   int
	LDRVoltage     int
	RainSensorTemp int
}

// InternalErrors are the device's cumulative internal error counters.
type InternalErrors struct {
	FirstAddressByteErrors  int
	CommandByteErrors       int
	SecondAddressByteErrors int
	PECByteErrors           int
}

// InternalName reads the unit name (normally "CloudWatcher").
func (s *Session) InternalName() (string, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdName)
	if err != nil {
		return "", err
	}
	return frame.String(0, "N")
}

// FirmwareVersion reads the firmware version string.
func (s *Session) FirmwareVersion() (string, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdVersion)
	if err != nil {
		return "", err
	}
	return frame.String(0, "V")
}

// SerialNumber reads the unit serial number.
func (s *Session) SerialNumber() (string, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdSerialNumber)
	if err != nil {
		return "", err
	}
	return frame.String(0, "K")
}

// ResetBuffers flushes the device's rx/tx buffers.
func (s *Session) ResetBuffers() error {
	_, err := s.ExecuteNamed(aagproto.CmdReset)
	return err
}

// Reboot restarts the unit via the documented four-token sequence and
// returns the firmware version it comes back with. The device needs a
// short gap between tokens, so this bypasses the single-command engine and
// drives the transport directly under the same in-flight guard.
func (s *Session) Reboot() (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}
	if err := s.acquire(activityCommand); err != nil {
		return "", err
	}
	defer s.release()

	for _, token := range []string{"B!", "O!", "O!", "T!"} {
		if err := s.tr.Write([]byte(token)); err != nil {
			return "", fmt.Errorf("reboot write: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}

	cmd, err := s.table.Lookup(aagproto.CmdVersion)
	if err != nil {
		return "", err
	}
	frame, err := s.roundTripResponseOnly(cmd)
	if err != nil {
		return "", err
	}
	return frame.String(0, "V")
}

// roundTripResponseOnly reads and decodes one response for a command whose
// request bytes were already written.
func (s *Session) roundTripResponseOnly(cmd aagproto.Command) (*aagproto.Frame, error) {
	raw, err := s.tr.ReadExact(cmd.ResponseSize())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cmd.Name, err)
	}
	return aagproto.Decode(raw, cmd)
}

// AnalogValues reads the zener voltage, LDR voltage and rain sensor
// temperature DACs.
func (s *Session) AnalogValues() (AnalogValues, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdAnalogValues)
	if err != nil {
		return AnalogValues{}, err
	}
	zener, err := frame.Int(0, "6")
	if err != nil {
		return AnalogValues{}, err
	}
	ldr, err := frame.Int(1, "4")
	if err != nil {
		return AnalogValues{}, err
	}
	rain, err := frame.Int(2, "5")
	if err != nil {
		return AnalogValues{}, err
	}
	return AnalogValues{ZenerVoltage: zener, LDRVoltage: ldr, RainSensorTemp: rain}, nil
}

// InternalErrors reads the device's internal error counters.
func (s *Session) InternalErrors() (InternalErrors, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdInternalErrors)
	if err != nil {
		return InternalErrors{}, err
	}
	var out InternalErrors
	fields := []struct {
		key string
		dst *int
	}{
		{"E1", &out.FirstAddressByteErrors},
		{"E2", &out.CommandByteErrors},
		{"E3", &out.SecondAddressByteErrors},
		{"E4", &out.PECByteErrors},
	}
	for i, f := range fields {
		v, err := frame.Int(i, f.key)
		if err != nil {
			return InternalErrors{}, err
		}
		*f.dst = v
	}
	return out, nil
}

// RainFrequency reads the rain drop counter, roughly 0-6000.
func (s *Session) RainFrequency() (Reading, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdRainFrequency)
	if err != nil {
		return Reading{}, err
	}
	raw, err := frame.Int(0, "R")
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specRainFreq, raw, s.constants), nil
}

// SwitchOpen reports whether the relay switch is open.
func (s *Session) SwitchOpen() (bool, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdSwitchStatus)
	if err != nil {
		return false, err
	}
	switch {
	case frame.HasKey(0, "X"):
		status, err := frame.String(0, "X")
		if err != nil {
			return false, err
		}
		if status != "Switch Open" {
			return false, fmt.Errorf("invalid switch status %q", status)
		}
		return true, nil
	case frame.HasKey(0, "Y"):
		status, err := frame.String(0, "Y")
		if err != nil {
			return false, err
		}
		if status != "Switch Close" {
			return false, fmt.Errorf("invalid switch status %q", status)
		}
		return false, nil
	default:
		return false, fmt.Errorf("switch status block %q carries neither X nor Y", frame.Block(0))
	}
}

// OpenSwitch commands the relay open and confirms the new state.
func (s *Session) OpenSwitch() (bool, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdSwitchOpen)
	if err != nil {
		return false, err
	}
	status, err := frame.String(0, "X")
	if err != nil {
		return false, err
	}
	return status == "Switch Open", nil
}

// CloseSwitch commands the relay closed and confirms the new state.
func (s *Session) CloseSwitch() (bool, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdSwitchClose)
	if err != nil {
		return false, err
	}
	status, err := frame.String(0, "Y")
	if err != nil {
		return false, err
	}
	return status == "Switch Close", nil
}

// HeaterPWM reads the capacitive rain sensor heater PWM setting.
func (s *Session) HeaterPWM() (int, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdHeaterPWM)
	if err != nil {
		return 0, err
	}
	return frame.Int(0, "Q")
}

// SetHeaterPWM sets the heater PWM (1-1023) and returns the value the
// device confirms.
func (s *Session) SetHeaterPWM(value int) (int, error) {
	cmd, err := aagproto.SetHeaterPWMCommand(value)
	if err != nil {
		return 0, err
	}
	frame, err := s.Execute(cmd)
	if err != nil {
		return 0, err
	}
	return frame.Int(0, "Q")
}

// SkyIRTemperature reads the sky-facing infrared sensor.
func (s *Session) SkyIRTemperature() (Reading, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdSkyIRTemperature)
	if err != nil {
		return Reading{}, err
	}
	raw, err := frame.Int(0, "1")
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specSkyIR, raw, s.constants), nil
}

// IRSensorTemperature reads the infrared sensor body temperature.
func (s *Session) IRSensorTemperature() (Reading, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdIRSensorTemperature)
	if err != nil {
		return Reading{}, err
	}
	raw, err := frame.Int(0, "2")
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specIRTemp, raw, s.constants), nil
}

// ElectricalConstants reads the per-unit calibration constants. The result
// is cached for the session lifetime: the constants are burned in at the
// factory and feed the ambient-light and rain-temperature conversions.
func (s *Session) ElectricalConstants() (ElectricalConstants, error) {
	if s.constantsOK {
		return s.constants, nil
	}
	frame, err := s.ExecuteNamed(aagproto.CmdElectricalConstants)
	if err != nil {
		return ElectricalConstants{}, err
	}
	c, err := ParseElectricalConstants(frame.Block(0))
	if err != nil {
		return ElectricalConstants{}, err
	}
	s.constants = c
	s.constantsOK = true
	return c, nil
}

// WindSensorPresent reports whether an anemometer is attached.
func (s *Session) WindSensorPresent() (bool, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdWindSensorPresence)
	if err != nil {
		return false, err
	}
	v, err := frame.Int(0, "v")
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// WindRaw reads the raw anemometer count.
func (s *Session) WindRaw() (int, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdWindSensor)
	if err != nil {
		return 0, err
	}
	return frame.Int(0, "w")
}

// WindSpeed reads the anemometer and applies the model calibration. A unit
// without a wind sensor yields a SensorAbsent reading, not an error.
func (s *Session) WindSpeed(model AnemometerModel) (Reading, error) {
	present, err := s.WindSensorPresent()
	if err != nil {
		return Reading{}, err
	}
	if !present {
		return Reading{Sensor: SensorWindSpeed, Unit: "km/h", Validity: SensorAbsent}, nil
	}

	raw, err := s.WindRaw()
	if err != nil {
		return Reading{}, err
	}
	spec := specWindBlack
	if model == AnemometerGrey {
		spec = specWindGrey
	}
	return DecodeReading(spec, raw, s.constants), nil
}

// Humidity reads the integrated humidity sensor. The device answers with a
// "!hh" block for the high-precision variant and "!h" for the low-precision
// one; the not-connected sentinels decode to SensorAbsent.
func (s *Session) Humidity() (Reading, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdHumiditySensor)
	if err != nil {
		return Reading{}, err
	}
	if frame.HasKey(0, "hh") {
		raw, err := frame.Int(0, "hh")
		if err != nil {
			return Reading{}, err
		}
		return DecodeReading(specHumidityHigh, raw, s.constants), nil
	}
	raw, err := frame.Int(0, "h")
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specHumidityLow, raw, s.constants), nil
}

// Temperature reads the integrated temperature sensor ("!th" high
// precision, "!t" low precision).
func (s *Session) Temperature() (Reading, error) {
	frame, err := s.ExecuteNamed(aagproto.CmdTemperatureSensor)
	if err != nil {
		return Reading{}, err
	}
	if frame.HasKey(0, "th") {
		raw, err := frame.Int(0, "th")
		if err != nil {
			return Reading{}, err
		}
		return DecodeReading(specTempHigh, raw, s.constants), nil
	}
	raw, err := frame.Int(0, "t")
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specTempLow, raw, s.constants), nil
}

// RelativeAmbientLight reads the LDR and reports ambient light as a ratio
// in [0, 1]: 0 is dark, 1 is bright. Requires the unit's electrical
// constants for the conversion.
func (s *Session) RelativeAmbientLight() (Reading, error) {
	if _, err := s.ElectricalConstants(); err != nil {
		return Reading{}, err
	}
	values, err := s.AnalogValues()
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specAmbientLight, values.LDRVoltage, s.constants), nil
}

// CapacitiveRainSensorTemperature reads the rain sensor thermistor.
func (s *Session) CapacitiveRainSensorTemperature() (Reading, error) {
	if _, err := s.ElectricalConstants(); err != nil {
		return Reading{}, err
	}
	values, err := s.AnalogValues()
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(specRainTemp, values.RainSensorTemp, s.constants), nil
}

// Snapshot pulls one full telemetry read: every sensor, one command at a
// time. Absent or out-of-range sensors appear in the result with their
// validity flag; only protocol or transport failures abort the snapshot.
func (s *Session) Snapshot() (map[string]Reading, error) {
	probes := []func() (Reading, error){
		s.SkyIRTemperature,
		s.IRSensorTemperature,
		s.Temperature,
		s.Humidity,
		func() (Reading, error) { return s.WindSpeed(AnemometerBlack) },
		s.RainFrequency,
		s.RelativeAmbientLight,
		s.CapacitiveRainSensorTemperature,
	}

	out := make(map[string]Reading, len(probes))
	for _, probe := range probes {
		r, err := probe()
		if err != nil {
			return nil, err
		}
		out[r.Sensor] = r
	}
	return out, nil
}
