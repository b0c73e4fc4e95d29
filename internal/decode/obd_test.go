package decode

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodePIDFormulas(t *testing.T) {
	cases := []struct {
		name  string
		raw   []byte
		check func(t *testing.T, f Fragment)
	}{
		{"rpm", []byte{0x41, 0x0C, 0x1A, 0xF8}, func(t *testing.T, f Fragment) {
			if f.Engine.RPM == nil || *f.Engine.RPM != 1726 {
				t.Fatalf("rpm: %+v", f.Engine.RPM)
			}
		}},
		{"coolant", []byte{0x41, 0x05, 0x7B}, func(t *testing.T, f Fragment) {
			if f.Engine.CoolantTempC == nil || *f.Engine.CoolantTempC != 83 {
				t.Fatalf("coolant: %+v", f.Engine.CoolantTempC)
			}
		}},
		{"speed", []byte{0x41, 0x0D, 0x56}, func(t *testing.T, f Fragment) {
			if f.Engine.SpeedKmh == nil || *f.Engine.SpeedKmh != 86 {
				t.Fatalf("speed: %+v", f.Engine.SpeedKmh)
			}
		}},
		{"battery", []byte{0x41, 0x42, 0x30, 0xD4}, func(t *testing.T, f Fragment) {
			if f.Engine.BatteryVoltage == nil || *f.Engine.BatteryVoltage != 12.5 {
				t.Fatalf("battery: %+v", f.Engine.BatteryVoltage)
			}
		}},
		{"fuel", []byte{0x41, 0x2F, 0xFF}, func(t *testing.T, f Fragment) {
			if f.Engine.FuelPct == nil || *f.Engine.FuelPct != 100 {
				t.Fatalf("fuel: %+v", f.Engine.FuelPct)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewOBDDecoder().Decode(tc.raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tc.check(t, f)
		})
	}
}

func TestDecodeUnknownPID(t *testing.T) {
	_, err := NewOBDDecoder().Decode([]byte{0x41, 0xA6, 0x00, 0x00, 0x00, 0x00})
	if !errors.Is(err, ErrUnknownPID) {
		t.Fatalf("want ErrUnknownPID, got %v", err)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	raw := []byte{0x41, 0x0C, 0x1A, 0xF8}
	a, err := NewOBDDecoder().Decode(raw)
	if err != nil {
		t.Fatalf("first decode: %v", err)
	}
	b, err := NewOBDDecoder().Decode(raw)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("decode not idempotent: %+v vs %+v", a, b)
	}
}

func TestStoredDTCs(t *testing.T) {
	// P0301, P0420, C0035 plus zero padding
	f, err := NewOBDDecoder().Decode([]byte{0x43, 0x03, 0x01, 0x04, 0x20, 0x40, 0x35, 0x00, 0x00})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"P0301", "P0420", "C0035"}
	if !reflect.DeepEqual(f.DTCCodes, want) {
		t.Fatalf("codes: got %v want %v", f.DTCCodes, want)
	}
}

func TestISOTPSingleFrame(t *testing.T) {
	f, err := NewOBDDecoder().Decode([]byte{0x04, 0x41, 0x0C, 0x1A, 0xF8})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Engine.RPM == nil || *f.Engine.RPM != 1726 {
		t.Fatalf("rpm: %+v", f.Engine.RPM)
	}
}

func TestISOTPReassembly(t *testing.T) {
	d := NewOBDDecoder()
	// 7-byte mode-03 payload split across a first and a consecutive frame.
	f, err := d.Decode([]byte{0x10, 0x07, 0x43, 0x03, 0x01, 0x04, 0x20, 0x01})
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !f.Empty() {
		t.Fatalf("first frame should buffer, got %+v", f)
	}
	f, err = d.Decode([]byte{0x21, 0x71})
	if err != nil {
		t.Fatalf("consecutive frame: %v", err)
	}
	want := []string{"P0301", "P0420", "P0171"}
	if !reflect.DeepEqual(f.DTCCodes, want) {
		t.Fatalf("codes: got %v want %v", f.DTCCodes, want)
	}
}

func TestISOTPOutOfOrder(t *testing.T) {
	d := NewOBDDecoder()
	if _, err := d.Decode([]byte{0x10, 0x0A, 0x43, 0x03, 0x01, 0x04, 0x20, 0x01}); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	// Sequence 2 arrives where 1 was expected: partial buffer is discarded.
	_, err := d.Decode([]byte{0x22, 0x71, 0x00, 0x00})
	if !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("want ErrIncompleteFrame, got %v", err)
	}
	// The decoder recovers on the next complete frame.
	f, err := d.Decode([]byte{0x41, 0x05, 0x7B})
	if err != nil || f.Engine.CoolantTempC == nil {
		t.Fatalf("decode after discard: %v %+v", err, f)
	}
}

func TestISOTPConsecutiveWithoutFirst(t *testing.T) {
	_, err := NewOBDDecoder().Decode([]byte{0x21, 0x71})
	if !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("want ErrIncompleteFrame, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range [][]byte{nil, {0x41}, {0x41, 0x0C, 0x1A}, {0x7F, 0x01, 0x12}} {
		if _, err := NewOBDDecoder().Decode(raw); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("raw % X: want ErrMalformedFrame, got %v", raw, err)
		}
	}
}
