// Package decode turns raw wire frames (OBD-II responses, CAN frames, NMEA
// sentences) into normalized telemetry fragments.
package decode

import (
	"errors"
	"time"

	"fleettrack/internal/model"
)

// Decode failure taxonomy. Every failure is local to the offending frame:
// the caller logs it and moves on to the next input.
var (
	ErrUnknownPID      = errors.New("unknown pid")
	ErrIncompleteFrame = errors.New("incomplete multi-frame response")
	ErrChecksumFailed  = errors.New("checksum mismatch")
	ErrMalformedFrame  = errors.New("malformed frame")
)

// Fragment is the partial telemetry decoded from a single frame. Fields a
// frame does not carry stay nil/empty; the orchestrator folds each fragment
// into a full TelemetrySample.
type Fragment struct {
	Timestamp time.Time
	Position  *model.Position
	Engine    model.Engine
	DTCCodes  []string
}

// Empty reports whether the frame carried nothing we monitor. CAN frames
// with unrecognized arbitration ids decode to an empty fragment, not an
// error, because the bus carries many frames outside the monitored set.
func (f Fragment) Empty() bool {
	return f.Position == nil && len(f.DTCCodes) == 0 &&
		f.Engine.RPM == nil && f.Engine.SpeedKmh == nil &&
		f.Engine.CoolantTempC == nil && f.Engine.OilTempC == nil &&
		f.Engine.ThrottlePct == nil && f.Engine.BatteryVoltage == nil &&
		f.Engine.FuelPct == nil
}

// Decoder is the single capability all three protocol decoders satisfy,
// letting the orchestrator treat them uniformly.
type Decoder interface {
	Decode(raw []byte) (Fragment, error)
}

func f64(v float64) *float64 { return &v }
