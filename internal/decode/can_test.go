package decode

import (
	"errors"
	"testing"
)

func canWire(id uint32, payload ...byte) []byte {
	raw := []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id), byte(len(payload))}
	return append(raw, payload...)
}

func TestCANDecodeKnownFrames(t *testing.T) {
	d := NewCANDecoder(nil)

	// Engine_Data_1: 16-bit rpm at bit 0, factor 0.25. 0x2EE0 = 12000 raw.
	f, err := d.Decode(canWire(0x0C0, 0xE0, 0x2E))
	if err != nil {
		t.Fatalf("rpm frame: %v", err)
	}
	if f.Engine.RPM == nil || *f.Engine.RPM != 3000 {
		t.Fatalf("rpm: %+v", f.Engine.RPM)
	}

	// Engine_Data_2: coolant at bit 0, oil at bit 16, both offset -40.
	f, err = d.Decode(canWire(0x0C1, 0x7B, 0x00, 0x50))
	if err != nil {
		t.Fatalf("temp frame: %v", err)
	}
	if f.Engine.CoolantTempC == nil || *f.Engine.CoolantTempC != 83 {
		t.Fatalf("coolant: %+v", f.Engine.CoolantTempC)
	}
	if f.Engine.OilTempC == nil || *f.Engine.OilTempC != 40 {
		t.Fatalf("oil: %+v", f.Engine.OilTempC)
	}

	// Battery_Data: 16-bit millivolts. 0x3264 = 12900.
	f, err = d.Decode(canWire(0x3C0, 0x64, 0x32))
	if err != nil {
		t.Fatalf("battery frame: %v", err)
	}
	if f.Engine.BatteryVoltage == nil || *f.Engine.BatteryVoltage != 12.9 {
		t.Fatalf("battery: %+v", f.Engine.BatteryVoltage)
	}
}

func TestCANUnknownIDIgnored(t *testing.T) {
	f, err := NewCANDecoder(nil).Decode(canWire(0x7DF, 0x01, 0x02, 0x03))
	if err != nil {
		t.Fatalf("unknown id must not error: %v", err)
	}
	if !f.Empty() {
		t.Fatalf("unknown id should decode to empty fragment: %+v", f)
	}
}

func TestCANMalformed(t *testing.T) {
	d := NewCANDecoder(nil)
	for _, raw := range [][]byte{{0x00, 0x00}, {0x00, 0x00, 0x00, 0xC0}, {0, 0, 0x0C, 0x00, 9, 1, 2, 3, 4, 5, 6, 7, 8, 9}} {
		if _, err := d.Decode(raw); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("raw % X: want ErrMalformedFrame, got %v", raw, err)
		}
	}
	// DLC larger than the delivered payload.
	if _, err := d.Decode([]byte{0, 0, 0x0C, 0x00, 4, 1, 2}); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("short payload: want ErrMalformedFrame")
	}
}

func TestCANShortPayloadSkipsSignal(t *testing.T) {
	// Only one byte delivered for a 16-bit rpm signal: skipped, not garbage.
	f, err := NewCANDecoder(nil).Decode(canWire(0x0C0, 0xE0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Engine.RPM != nil {
		t.Fatalf("truncated signal must not decode: %+v", f.Engine.RPM)
	}
}

func TestCANCustomSignalMap(t *testing.T) {
	m := SignalMap{
		0x123: {Name: "Custom", Signals: []SignalDef{
			{Name: SignalThrottlePos, StartBit: 4, Length: 8, Factor: 0.5, Offset: 0},
		}},
	}
	// raw bits: payload 0xF0,0x05 → little-endian 0x05F0, >>4 & 0xFF = 0x5F = 95.
	f, err := NewCANDecoder(m).Decode(canWire(0x123, 0xF0, 0x05))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Engine.ThrottlePct == nil || *f.Engine.ThrottlePct != 47.5 {
		t.Fatalf("throttle: %+v", f.Engine.ThrottlePct)
	}
}
