// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package cloudwatcher

import (
	"testing"

	"github.com/TotallyFred/cloudwatcher/pkg/aagproto"
)

// constantsBlock builds an "!M" block with the packed byte-pair layout:
// zener 3.00 V, LDR max 2000 ohm, LDR pull-up 56.0 ohm, rain beta 3450,
// rain res@25 1.0, rain pull-up 1.0.
func constantsBlock() []byte {
	pairs := []uint16{0, 300, 2000, 560, 3450, 10, 10}
	b := []byte{aagproto.BlockMarker, 'M', 0}
	for _, p := range pairs[1:] {
		b = append(b, byte(p>>8), byte(p))
	}
	return b
}

func TestIdentityCommands(t *testing.T) {
	s, tr := newTestSession(
		valid(testFrame(testBlock("N", "CloudWatcher"))),
		valid(testFrame(testBlock("V", "5"))),
		valid(testFrame(testBlock("K", "1234"))),
	)

	name, err := s.InternalName()
	if err != nil {
		t.Fatalf("InternalName failed: %v", err)
	}
	if name != "CloudWatcher" {
		t.Errorf("InternalName = %q, want %q", name, "CloudWatcher")
	}

	version, err := s.FirmwareVersion()
	if err != nil {
		t.Fatalf("FirmwareVersion failed: %v", err)
	}
	if version != "5" {
		t.Errorf("FirmwareVersion = %q, want %q", version, "5")
	}

	serial, err := s.SerialNumber()
	if err != nil {
		t.Fatalf("SerialNumber failed: %v", err)
	}
	if serial != "1234" {
		t.Errorf("SerialNumber = %q, want %q", serial, "1234")
	}

	if got := tr.writes; len(got) != 3 || got[0] != "A!" || got[1] != "B!" || got[2] != "K!" {
		t.Errorf("wrote %q, want [A! B! K!]", got)
	}
}

func TestAnalogValues(t *testing.T) {
	s, _ := newTestSession(valid(testFrame(
		testBlock("6", "920"),
		testBlock("4", "512"),
		testBlock("5", "300"),
	)))

	values, err := s.AnalogValues()
	if err != nil {
		t.Fatalf("AnalogValues failed: %v", err)
	}
	want := AnalogValues{ZenerVoltage: 920, LDRVoltage: 512, RainSensorTemp: 300}
	if values != want {
		t.Errorf("AnalogValues = %+v, want %+v", values, want)
	}
}

func TestInternalErrors(t *testing.T) {
	s, _ := newTestSession(valid(testFrame(
		testBlock("E1", "1"),
		testBlock("E2", "2"),
		testBlock("E3", "3"),
		testBlock("E4", "4"),
	)))

	counters, err := s.InternalErrors()
	if err != nil {
		t.Fatalf("InternalErrors failed: %v", err)
	}
	want := InternalErrors{
		FirstAddressByteErrors:  1,
		CommandByteErrors:       2,
		SecondAddressByteErrors: 3,
		PECByteErrors:           4,
	}
	if counters != want {
		t.Errorf("InternalErrors = %+v, want %+v", counters, want)
	}
}

func TestSwitch(t *testing.T) {
	t.Run("status open", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("X", "Switch Open"))))
		open, err := s.SwitchOpen()
		if err != nil {
			t.Fatalf("SwitchOpen failed: %v", err)
		}
		if !open {
			t.Error("SwitchOpen = false, want true")
		}
	})

	t.Run("status closed", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("Y", "Switch Close"))))
		open, err := s.SwitchOpen()
		if err != nil {
			t.Fatalf("SwitchOpen failed: %v", err)
		}
		if open {
			t.Error("SwitchOpen = true, want false")
		}
	})

	t.Run("garbled status text", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("X", "Switch Wat"))))
		if _, err := s.SwitchOpen(); err == nil {
			t.Error("SwitchOpen accepted garbled status text")
		}
	})

	t.Run("open command", func(t *testing.T) {
		s, tr := newTestSession(valid(testFrame(testBlock("X", "Switch Open"))))
		open, err := s.OpenSwitch()
		if err != nil {
			t.Fatalf("OpenSwitch failed: %v", err)
		}
		if !open {
			t.Error("OpenSwitch = false, want true")
		}
		if tr.writes[0] != "G!" {
			t.Errorf("wrote %q, want G!", tr.writes[0])
		}
	})

	t.Run("close command", func(t *testing.T) {
		s, tr := newTestSession(valid(testFrame(testBlock("Y", "Switch Close"))))
		open, err := s.CloseSwitch()
		if err != nil {
			t.Fatalf("CloseSwitch failed: %v", err)
		}
		if open {
			t.Error("CloseSwitch = true, want false")
		}
		if tr.writes[0] != "H!" {
			t.Errorf("wrote %q, want H!", tr.writes[0])
		}
	})
}

func TestHeaterPWM(t *testing.T) {
	t.Run("read", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("Q", "100"))))
		v, err := s.HeaterPWM()
		if err != nil {
			t.Fatalf("HeaterPWM failed: %v", err)
		}
		if v != 100 {
			t.Errorf("HeaterPWM = %d, want 100", v)
		}
	})

	t.Run("set", func(t *testing.T) {
		s, tr := newTestSession(valid(testFrame(testBlock("Q", "0500"))))
		v, err := s.SetHeaterPWM(500)
		if err != nil {
			t.Fatalf("SetHeaterPWM failed: %v", err)
		}
		if v != 500 {
			t.Errorf("SetHeaterPWM = %d, want 500", v)
		}
		if tr.writes[0] != "P0500!" {
			t.Errorf("wrote %q, want P0500!", tr.writes[0])
		}
	})

	t.Run("set out of range", func(t *testing.T) {
		s, tr := newTestSession()
		if _, err := s.SetHeaterPWM(5000); err == nil {
			t.Error("SetHeaterPWM(5000) succeeded, want error")
		}
		if tr.writeCount() != 0 {
			t.Error("out-of-range PWM value reached the wire")
		}
	})
}

func TestElectricalConstants(t *testing.T) {
	s, tr := newTestSession(valid(testFrame(constantsBlock())))

	c, err := s.ElectricalConstants()
	if err != nil {
		t.Fatalf("ElectricalConstants failed: %v", err)
	}
	if c.ZenerVoltage != 3.0 {
		t.Errorf("ZenerVoltage = %v, want 3.0", c.ZenerVoltage)
	}
	if c.LDRMaxResistance != 2000 {
		t.Errorf("LDRMaxResistance = %v, want 2000", c.LDRMaxResistance)
	}
	if c.LDRPullUpResistance != 56 {
		t.Errorf("LDRPullUpResistance = %v, want 56", c.LDRPullUpResistance)
	}
	if c.RainBeta != 3450 {
		t.Errorf("RainBeta = %v, want 3450", c.RainBeta)
	}

	// Constants are burned in at the factory; the second call must come
	// from the cache, not the wire.
	if _, err := s.ElectricalConstants(); err != nil {
		t.Fatalf("cached ElectricalConstants failed: %v", err)
	}
	if tr.writeCount() != 1 {
		t.Errorf("wrote %d times, want 1 (second read must hit the cache)", tr.writeCount())
	}
}

func TestWindSpeed(t *testing.T) {
	t.Run("no anemometer", func(t *testing.T) {
		s, tr := newTestSession(valid(testFrame(testBlock("v", "0"))))
		r, err := s.WindSpeed(AnemometerBlack)
		if err != nil {
			t.Fatalf("WindSpeed failed: %v", err)
		}
		if r.Validity != SensorAbsent {
			t.Errorf("Validity = %v, want SensorAbsent", r.Validity)
		}
		if tr.writeCount() != 1 {
			t.Errorf("wrote %d times, want 1 (no sensor read without presence)", tr.writeCount())
		}
	})

	t.Run("black model calibration", func(t *testing.T) {
		s, _ := newTestSession(
			valid(testFrame(testBlock("v", "1"))),
			valid(testFrame(testBlock("w", "10"))),
		)
		r, err := s.WindSpeed(AnemometerBlack)
		if err != nil {
			t.Fatalf("WindSpeed failed: %v", err)
		}
		if !approx(r.Value, 11.4, 1e-9) {
			t.Errorf("Value = %v, want 11.4", r.Value)
		}
	})

	t.Run("black model zero stays zero", func(t *testing.T) {
		s, _ := newTestSession(
			valid(testFrame(testBlock("v", "1"))),
			valid(testFrame(testBlock("w", "0"))),
		)
		r, err := s.WindSpeed(AnemometerBlack)
		if err != nil {
			t.Fatalf("WindSpeed failed: %v", err)
		}
		if r.Value != 0 {
			t.Errorf("Value = %v, want 0 (no offset on a still day)", r.Value)
		}
	})

	t.Run("grey model is identity", func(t *testing.T) {
		s, _ := newTestSession(
			valid(testFrame(testBlock("v", "1"))),
			valid(testFrame(testBlock("w", "25"))),
		)
		r, err := s.WindSpeed(AnemometerGrey)
		if err != nil {
			t.Fatalf("WindSpeed failed: %v", err)
		}
		if r.Value != 25 {
			t.Errorf("Value = %v, want 25", r.Value)
		}
	})
}

func TestHumidity(t *testing.T) {
	t.Run("high precision", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("hh", "32768"))))
		r, err := s.Humidity()
		if err != nil {
			t.Fatalf("Humidity failed: %v", err)
		}
		if !approx(r.Value, 56.5, 1e-9) {
			t.Errorf("Value = %v, want 56.5", r.Value)
		}
	})

	t.Run("low precision", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("h", "50"))))
		r, err := s.Humidity()
		if err != nil {
			t.Fatalf("Humidity failed: %v", err)
		}
		if !approx(r.Value, 56.5, 1e-9) {
			t.Errorf("Value = %v, want 56.5", r.Value)
		}
	})

	t.Run("absent sentinel", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("hh", "65535"))))
		r, err := s.Humidity()
		if err != nil {
			t.Fatalf("Humidity failed: %v", err)
		}
		if r.Validity != SensorAbsent {
			t.Errorf("Validity = %v, want SensorAbsent", r.Validity)
		}
	})
}

func TestTemperature(t *testing.T) {
	t.Run("high precision", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("th", "30000"))))
		r, err := s.Temperature()
		if err != nil {
			t.Fatalf("Temperature failed: %v", err)
		}
		if !approx(r.Value, 30000*175.72/65536-46.85, 1e-9) {
			t.Errorf("Value = %v, want %v", r.Value, 30000*175.72/65536-46.85)
		}
	})

	t.Run("low precision absent sentinel", func(t *testing.T) {
		s, _ := newTestSession(valid(testFrame(testBlock("t", "100"))))
		r, err := s.Temperature()
		if err != nil {
			t.Fatalf("Temperature failed: %v", err)
		}
		if r.Validity != SensorAbsent {
			t.Errorf("Validity = %v, want SensorAbsent", r.Validity)
		}
	})
}

func TestSnapshot(t *testing.T) {
	// Full poll with the wind sensor absent. Order matches the probe list:
	// sky IR, IR body, temperature, humidity, wind presence, rain counter,
	// then constants plus two analog reads for light and rain temperature.
	analog := testFrame(
		testBlock("6", "920"),
		testBlock("4", "512"),
		testBlock("5", "300"),
	)
	s, _ := newTestSession(
		valid(testFrame(testBlock("1", "-1250"))),
		valid(testFrame(testBlock("2", "2150"))),
		valid(testFrame(testBlock("th", "30000"))),
		valid(testFrame(testBlock("hh", "65535"))),
		valid(testFrame(testBlock("v", "0"))),
		valid(testFrame(testBlock("R", "2560"))),
		valid(testFrame(constantsBlock())),
		valid(analog),
		valid(analog),
	)

	readings, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	wantSensors := []string{
		SensorSkyIRTemp, SensorIRTemp, SensorTemp, SensorHumidity,
		SensorWindSpeed, SensorRainFreq, SensorAmbientLight, SensorRainTemp,
	}
	if len(readings) != len(wantSensors) {
		t.Fatalf("Snapshot returned %d readings, want %d", len(readings), len(wantSensors))
	}
	for _, sensor := range wantSensors {
		if _, ok := readings[sensor]; !ok {
			t.Errorf("Snapshot missing sensor %q", sensor)
		}
	}

	if !approx(readings[SensorSkyIRTemp].Value, -12.5, 1e-9) {
		t.Errorf("sky IR = %v, want -12.5", readings[SensorSkyIRTemp].Value)
	}
	if readings[SensorHumidity].Validity != SensorAbsent {
		t.Error("absent humidity sensor reported as present")
	}
	if readings[SensorWindSpeed].Validity != SensorAbsent {
		t.Error("absent wind sensor reported as present")
	}
	if readings[SensorRainFreq].Value != 2560 {
		t.Errorf("rain counter = %v, want 2560", readings[SensorRainFreq].Value)
	}
}

func TestSnapshot_ProtocolFailureAborts(t *testing.T) {
	// The first probe times out repeatedly; the snapshot must fail rather
	// than report a partial read as complete.
	s, _ := newTestSession(timeoutStep(), timeoutStep(), timeoutStep())

	if _, err := s.Snapshot(); err == nil {
		t.Fatal("Snapshot succeeded with an unresponsive device")
	}
}

func TestReboot(t *testing.T) {
	s, tr := newTestSession(valid(testFrame(testBlock("V", "5"))))

	version, err := s.Reboot()
	if err != nil {
		t.Fatalf("Reboot failed: %v", err)
	}
	if version != "5" {
		t.Errorf("Reboot version = %q, want %q", version, "5")
	}
	want := []string{"B!", "O!", "O!", "T!"}
	if len(tr.writes) != len(want) {
		t.Fatalf("wrote %q, want %q", tr.writes, want)
	}
	for i, token := range want {
		if tr.writes[i] != token {
			t.Errorf("write %d = %q, want %q", i, tr.writes[i], token)
		}
	}
}
