package decode

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

// sentence appends the NMEA checksum suffix to a body like "GPGGA,...".
func sentence(body string) []byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return []byte(fmt.Sprintf("$%s*%02X", body, sum))
}

func near(got, want, tol float64) bool { return math.Abs(got-want) <= tol }

func TestNMEADecodeGGA(t *testing.T) {
	raw := sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	f, err := NewNMEADecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := f.Position
	if p == nil || !p.Valid {
		t.Fatalf("expected valid fix, got %+v", p)
	}
	if !near(p.Lat, 48.1173, 1e-4) || !near(p.Lng, 11.516667, 1e-4) {
		t.Fatalf("coords: %f,%f", p.Lat, p.Lng)
	}
	if p.AltitudeM != 545.4 || p.Satellites != 8 {
		t.Fatalf("alt/sats: %f %d", p.AltitudeM, p.Satellites)
	}
}

func TestNMEADecodeRMC(t *testing.T) {
	raw := sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	f, err := NewNMEADecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := f.Position
	if p == nil || !p.Valid {
		t.Fatalf("expected valid fix, got %+v", p)
	}
	if !near(p.SpeedKmh, 22.4*1.852, 1e-6) {
		t.Fatalf("speed: %f", p.SpeedKmh)
	}
	if p.HeadingDeg != 84.4 {
		t.Fatalf("heading: %f", p.HeadingDeg)
	}
}

func TestNMEASouthWestNegative(t *testing.T) {
	raw := sentence("GPRMC,123519,A,3352.000,S,15112.000,W,000.0,000.0,230394,,")
	f, err := NewNMEADecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Position.Lat >= 0 || f.Position.Lng >= 0 {
		t.Fatalf("hemisphere signs: %f,%f", f.Position.Lat, f.Position.Lng)
	}
}

func TestNMEAChecksumFailure(t *testing.T) {
	raw := sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	raw[10]++ // corrupt one payload character after checksum computation
	f, err := NewNMEADecoder().Decode(raw)
	if !errors.Is(err, ErrChecksumFailed) {
		t.Fatalf("want ErrChecksumFailed, got %v", err)
	}
	if f.Position != nil {
		t.Fatal("corrupted sentence must never yield a position")
	}
}

func TestNMEANoFixMarksInvalid(t *testing.T) {
	raw := sentence("GPGGA,123519,,,,,0,03,,,M,,M,,")
	f, err := NewNMEADecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := f.Position
	if p == nil {
		t.Fatal("no-fix sentence should still report satellite count")
	}
	if p.Valid {
		t.Fatal("fix quality 0 must mark the position invalid")
	}
	if p.Lat != 0 || p.Lng != 0 {
		t.Fatalf("invalid position should not carry coordinates: %+v", p)
	}
	if p.Satellites != 3 {
		t.Fatalf("satellites: %d", p.Satellites)
	}
}

func TestNMEAVoidRMCMarksInvalid(t *testing.T) {
	raw := sentence("GPRMC,123519,V,,,,,,,230394,,")
	f, err := NewNMEADecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Position == nil || f.Position.Valid {
		t.Fatalf("void status must mark the position invalid: %+v", f.Position)
	}
}

func TestNMEAUnmonitoredSentence(t *testing.T) {
	raw := sentence("GPVTG,054.7,T,034.4,M,005.5,N,010.2,K")
	f, err := NewNMEADecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !f.Empty() {
		t.Fatalf("vtg should be ignored, got %+v", f)
	}
}

func TestNMEAMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte("GPGGA,123519*00"),        // no leading $
		[]byte("$GPGGA,123519"),          // no checksum delimiter
		[]byte("$GPGGA,123519*ZZ"),       // non-hex checksum
		sentence("GPGGA,123519,bad,N,X"), // too few fields
	}
	for _, raw := range cases {
		if _, err := NewNMEADecoder().Decode(raw); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("%q: want ErrMalformedFrame, got %v", raw, err)
		}
	}
}
