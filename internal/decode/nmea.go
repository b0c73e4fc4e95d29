package decode

import (
	"fmt"
	"strconv"
	"strings"

	"fleettrack/internal/model"
)

const knotsToKmh = 1.852

// NMEADecoder parses NMEA 0183 GPS sentences (GGA position fix, RMC
// recommended minimum). Stateless and safe for concurrent use.
type NMEADecoder struct{}

func NewNMEADecoder() *NMEADecoder { return &NMEADecoder{} }

// Decode parses one ASCII sentence. The checksum (XOR of every character
// between '$' and '*') is verified before any field is trusted; a mismatch
// drops the sentence. A sentence reporting no fix yields a position with
// Valid=false — never a zeroed coordinate, since (0,0) is a real place.
func (d *NMEADecoder) Decode(raw []byte) (Fragment, error) {
	line := strings.TrimRight(string(raw), "\r\n")
	if len(line) < 9 || line[0] != '$' {
		return Fragment{}, fmt.Errorf("not an nmea sentence: %w", ErrMalformedFrame)
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return Fragment{}, fmt.Errorf("missing checksum suffix: %w", ErrMalformedFrame)
	}
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return Fragment{}, fmt.Errorf("bad checksum field %q: %w", line[star+1:], ErrMalformedFrame)
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	if sum != byte(want) {
		return Fragment{}, fmt.Errorf("computed %02X, sentence says %02X: %w", sum, want, ErrChecksumFailed)
	}

	fields := strings.Split(line[1:star], ",")
	talker := fields[0]
	switch {
	case strings.HasSuffix(talker, "GGA"):
		return decodeGGA(fields)
	case strings.HasSuffix(talker, "RMC"):
		return decodeRMC(fields)
	}
	// Other sentence types (VTG, GSV, ...) are valid but unmonitored.
	return Fragment{}, nil
}

// decodeGGA: $GPGGA,time,lat,N,lon,E,fix,sats,hdop,alt,M,geoid,M,...*cs
func decodeGGA(f []string) (Fragment, error) {
	if len(f) < 10 {
		return Fragment{}, fmt.Errorf("gga has %d fields: %w", len(f), ErrMalformedFrame)
	}
	pos := model.Position{}
	fix, _ := strconv.Atoi(f[6])
	pos.Satellites, _ = strconv.Atoi(f[7])
	if fix == 0 {
		// No fix: satellite count is still informative, coordinates are not.
		return Fragment{Position: &pos}, nil
	}
	lat, ok1 := nmeaCoord(f[2], f[3])
	lng, ok2 := nmeaCoord(f[4], f[5])
	if !ok1 || !ok2 {
		return Fragment{}, fmt.Errorf("gga coordinates %q/%q: %w", f[2], f[4], ErrMalformedFrame)
	}
	pos.Valid = true
	pos.Lat = lat
	pos.Lng = lng
	pos.AltitudeM, _ = strconv.ParseFloat(f[9], 64)
	return Fragment{Position: &pos}, nil
}

// decodeRMC: $GPRMC,time,status,lat,N,lon,E,speedKn,course,date,...*cs
func decodeRMC(f []string) (Fragment, error) {
	if len(f) < 9 {
		return Fragment{}, fmt.Errorf("rmc has %d fields: %w", len(f), ErrMalformedFrame)
	}
	pos := model.Position{}
	if f[2] != "A" { // V = void, receiver warning
		return Fragment{Position: &pos}, nil
	}
	lat, ok1 := nmeaCoord(f[3], f[4])
	lng, ok2 := nmeaCoord(f[5], f[6])
	if !ok1 || !ok2 {
		return Fragment{}, fmt.Errorf("rmc coordinates %q/%q: %w", f[3], f[5], ErrMalformedFrame)
	}
	pos.Valid = true
	pos.Lat = lat
	pos.Lng = lng
	if kn, err := strconv.ParseFloat(f[7], 64); err == nil {
		pos.SpeedKmh = kn * knotsToKmh
	}
	pos.HeadingDeg, _ = strconv.ParseFloat(f[8], 64)
	return Fragment{Position: &pos}, nil
}

// nmeaCoord converts NMEA ddmm.mmmm (latitude) / dddmm.mmmm (longitude)
// plus a hemisphere letter into signed decimal degrees.
func nmeaCoord(value, hemi string) (float64, bool) {
	dot := strings.IndexByte(value, '.')
	if dot < 3 {
		return 0, false
	}
	deg, err1 := strconv.ParseFloat(value[:dot-2], 64)
	min, err2 := strconv.ParseFloat(value[dot-2:], 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	dec := deg + min/60
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
