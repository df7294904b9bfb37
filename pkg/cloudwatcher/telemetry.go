// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cloudwatcher

import (
	"fmt"
	"math"

	"github.com/TotallyFred/cloudwatcher/pkg/aagproto"
)

// Validity classifies a telemetry reading. SensorAbsent and OutOfRange are
// conditions, not errors: one unequipped sensor never fails a snapshot.
type Validity int

const (
	// Valid means the raw count was in range and the value is calibrated.
	Valid Validity = iota

	// SensorAbsent means the raw count matched the documented
	// not-connected sentinel for this sensor.
	SensorAbsent

	// OutOfRange means the raw count was clamped to the calibration
	// domain before conversion. The value is still reported so callers
	// can distinguish an extreme reading from a missing sensor.
	OutOfRange
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case SensorAbsent:
		return "sensor absent"
	case OutOfRange:
		return "out of range"
	default:
		return "unknown"
	}
}

// Reading is one decoded, calibrated sensor value. Immutable after
// creation.
type Reading struct {
	Sensor   string
	Raw      int
	Value    float64
	Unit     string
	Validity Validity
}

func (r Reading) String() string {
	if r.Validity == SensorAbsent {
		return fmt.Sprintf("%s: absent", r.Sensor)
	}
	return fmt.Sprintf("%s: %.2f %s (%s)", r.Sensor, r.Value, r.Unit, r.Validity)
}

// ElectricalConstants are the per-unit calibration constants reported by
// the electrical-constants command, already scaled per the vendor document.
type ElectricalConstants struct {
	ZenerVoltage         float64
	LDRMaxResistance     float64
	LDRPullUpResistance  float64
	RainBeta             float64
	RainResAt25          float64
	RainPullUpResistance float64
}

// ParseElectricalConstants unpacks the "!M" block. Unlike every other
// response field the values are packed big-endian byte pairs, not ASCII
// decimals.
func ParseElectricalConstants(block []byte) (ElectricalConstants, error) {
	if len(block) < aagproto.BlockSize || block[0] != aagproto.BlockMarker || block[1] != 'M' {
		return ElectricalConstants{}, fmt.Errorf("block %q is not an electrical-constants block", block)
	}
	v := block[2:]
	pair := func(i int) float64 {
		return float64(256*int(v[i]) + int(v[i+1]))
	}
	return ElectricalConstants{
		ZenerVoltage:         pair(1) / 100,
		LDRMaxResistance:     pair(3),
		LDRPullUpResistance:  pair(5) / 10,
		RainBeta:             pair(7),
		RainResAt25:          pair(9) / 10,
		RainPullUpResistance: pair(11) / 10,
	}, nil
}

// SensorSpec is the tagged decode rule for one sensor kind: the sentinel
// predicate for an absent sensor, the clamp range of the calibration domain
// and the conversion to engineering units. DecodeReading is a pure function
// of spec, raw count and constants.
type SensorSpec struct {
	Name string
	Unit string

	// Absent matches the documented not-connected sentinel. Nil means the
	// sensor has no absence sentinel.
	Absent func(raw int) bool

	// Min/Max bound the calibration domain. Raw counts outside are
	// clamped and the reading flagged OutOfRange. Min == Max disables
	// clamping.
	Min, Max int

	Convert func(raw int, c ElectricalConstants) float64
}

// DecodeReading maps a raw sensor count to a calibrated Reading. Out-of-
// range counts are clamped and flagged rather than discarded; sentinel
// counts yield a SensorAbsent reading with a zero value.
func DecodeReading(spec SensorSpec, raw int, c ElectricalConstants) Reading {
	if spec.Absent != nil && spec.Absent(raw) {
		return Reading{Sensor: spec.Name, Raw: raw, Unit: spec.Unit, Validity: SensorAbsent}
	}

	validity := Valid
	clamped := raw
	if spec.Min < spec.Max {
		if raw < spec.Min {
			clamped = spec.Min
			validity = OutOfRange
		} else if raw > spec.Max {
			clamped = spec.Max
			validity = OutOfRange
		}
	}

	return Reading{
		Sensor:   spec.Name,
		Raw:      raw,
		Value:    spec.Convert(clamped, c),
		Unit:     spec.Unit,
		Validity: validity,
	}
}

// Snapshot field names, matching the keys published by the sample MQTT
// application.
const (
	SensorSkyIRTemp    = "sky_ir_temp"
	SensorIRTemp       = "ir_temp"
	SensorTemp         = "temp"
	SensorHumidity     = "rel_humidity"
	SensorWindSpeed    = "wind_speed"
	SensorRainFreq     = "rain_freq"
	SensorAmbientLight = "ambient_light_rel"
	SensorRainTemp     = "rain_sensor_temp"
)

const absoluteZero = 273.15

// Sentinels: the high-precision integrated sensor reports 65535 when not
// connected, the low-precision one reports 100.
func absent65535(raw int) bool { return raw == 65535 }
func absent100(raw int) bool   { return raw == 100 }

var (
	// Sky-facing IR sensor, hundredths of a degree on the wire.
	specSkyIR = SensorSpec{
		Name: SensorSkyIRTemp, Unit: "°C",
		Convert: func(raw int, _ ElectricalConstants) float64 { return float64(raw) / 100 },
	}

	// IR sensor body temperature, same scaling.
	specIRTemp = SensorSpec{
		Name: SensorIRTemp, Unit: "°C",
		Convert: func(raw int, _ ElectricalConstants) float64 { return float64(raw) / 100 },
	}

	// Integrated temperature sensor, high-precision variant.
	specTempHigh = SensorSpec{
		Name: SensorTemp, Unit: "°C", Absent: absent65535,
		Convert: func(raw int, _ ElectricalConstants) float64 {
			return float64(raw)*175.72/65536 - 46.85
		},
	}

	// Integrated temperature sensor, low-precision variant.
	specTempLow = SensorSpec{
		Name: SensorTemp, Unit: "°C", Absent: absent100,
		Convert: func(raw int, _ ElectricalConstants) float64 {
			return float64(raw)*1.7572 - 46.85
		},
	}

	// Relative humidity, high-precision variant.
	specHumidityHigh = SensorSpec{
		Name: SensorHumidity, Unit: "%", Absent: absent65535,
		Convert: func(raw int, _ ElectricalConstants) float64 {
			return float64(raw)*125/65536 - 6
		},
	}

	// Relative humidity, low-precision variant.
	specHumidityLow = SensorSpec{
		Name: SensorHumidity, Unit: "%", Absent: absent100,
		Convert: func(raw int, _ ElectricalConstants) float64 {
			return float64(raw)*125/100 - 6
		},
	}

	// Black anemometer model; a zero count is a true zero, not an offset.
	specWindBlack = SensorSpec{
		Name: SensorWindSpeed, Unit: "km/h",
		Convert: func(raw int, _ ElectricalConstants) float64 {
			if raw <= 0 {
				return 0
			}
			return float64(raw)*0.84 + 3
		},
	}

	// Grey anemometer model reports km/h directly.
	specWindGrey = SensorSpec{
		Name: SensorWindSpeed, Unit: "km/h",
		Convert: func(raw int, _ ElectricalConstants) float64 { return float64(raw) },
	}

	// Rain drop counter frequency.
	specRainFreq = SensorSpec{
		Name: SensorRainFreq, Unit: "counts",
		Convert: func(raw int, _ ElectricalConstants) float64 { return float64(raw) },
	}

	// Ambient light LDR, converted to the ratio of the LDR resistance to
	// its maximum: 0 is dark, 1 is bright.
	specAmbientLight = SensorSpec{
		Name: SensorAmbientLight, Unit: "ratio",
		Min:  1, Max: 1022,
		Convert: func(raw int, c ElectricalConstants) float64 {
			r := ldrResistance(raw, c)
			if c.LDRMaxResistance <= 0 {
				return 0
			}
			return 1 - r/c.LDRMaxResistance
		},
	}

	// Capacitive rain sensor thermistor.
	specRainTemp = SensorSpec{
		Name: SensorRainTemp, Unit: "°C",
		Min:  1, Max: 1022,
		Convert: rainSensorTemperature,
	}
)

// ldrResistance converts the LDR ADC count to a resistance using the
// unit's pull-up constant.
func ldrResistance(raw int, c ElectricalConstants) float64 {
	pullUp := c.LDRPullUpResistance
	if pullUp <= 0 {
		pullUp = 56 // vendor default for units predating the M! command
	}
	return pullUp / ((1023 / float64(raw)) - 1)
}

// rainSensorTemperature solves the NTC thermistor equation for the rain
// sensor ADC count.
func rainSensorTemperature(raw int, c ElectricalConstants) float64 {
	pullUp := c.RainPullUpResistance
	if pullUp <= 0 {
		pullUp = 1
	}
	resAt25 := c.RainResAt25
	if resAt25 <= 0 {
		resAt25 = 1
	}
	beta := c.RainBeta
	if beta <= 0 {
		beta = 3450
	}

	r := pullUp / ((1023 / float64(raw)) - 1)
	r = math.Log(r / resAt25)
	return 1/(r/beta+1/(absoluteZero+25)) - absoluteZero
}
