// Package sim generates synthetic vehicle traffic for load testing and
// local development: plausible GPS tracks, drivetrain frames, and the
// occasional trouble code.
package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"fleettrack/internal/track"
)

// Ingester is where generated frames go; satisfied by *track.Tracker.
type Ingester interface {
	Ingest(f track.RawFrame) error
}

type vehicleState struct {
	id       string
	lat, lng float64
	heading  float64 // degrees
	speedKmh float64
	rpm      float64
	coolantC float64
	fuelPct  float64
	faulty   bool
}

// Simulator produces frames round-robin across its fleet, pacing emission
// with a token-bucket limiter.
type Simulator struct {
	vehicles []*vehicleState
	limiter  *rate.Limiter
	rng      *rand.Rand
	next     int // vehicle cursor
	phase    int // protocol rotation per vehicle visit
}

// New builds a simulator with n vehicles scattered around the given origin,
// emitting framesPerSec frames in steady state.
func New(n int, originLat, originLng, framesPerSec float64, seed int64) *Simulator {
	rng := rand.New(rand.NewSource(seed))
	vs := make([]*vehicleState, 0, n)
	for i := 0; i < n; i++ {
		vs = append(vs, &vehicleState{
			id:       "sim-" + uuid.NewString()[:8],
			lat:      originLat + rng.Float64()*0.2 - 0.1,
			lng:      originLng + rng.Float64()*0.2 - 0.1,
			heading:  rng.Float64() * 360,
			speedKmh: 30 + rng.Float64()*50,
			rpm:      1500 + rng.Float64()*1500,
			coolantC: 85 + rng.Float64()*10,
			fuelPct:  40 + rng.Float64()*60,
			faulty:   rng.Float64() < 0.1,
		})
	}
	return &Simulator{
		vehicles: vs,
		limiter:  rate.NewLimiter(rate.Limit(framesPerSec), int(math.Max(1, framesPerSec))),
		rng:      rng,
	}
}

// Run feeds frames into ing until the context is canceled.
func (s *Simulator) Run(ctx context.Context, ing Ingester) error {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := ing.Ingest(s.Step()); err != nil {
			return err
		}
	}
}

// Step advances one vehicle and returns its next frame. The protocol rotates
// NMEA, CAN, OBD so every decoder sees traffic.
func (s *Simulator) Step() track.RawFrame {
	v := s.vehicles[s.next]
	frame := track.RawFrame{VehicleID: v.id, ReceivedAt: time.Now().UTC()}

	switch s.phase {
	case 0:
		s.drive(v)
		frame.Protocol = track.ProtocolNMEA
		frame.Payload = rmcSentence(v)
	case 1:
		frame.Protocol = track.ProtocolCAN
		frame.Payload = speedFrame(v.speedKmh)
	case 2:
		frame.Protocol = track.ProtocolOBD
		if v.faulty && s.rng.Float64() < 0.2 {
			frame.Payload = []byte{0x43, 0x03, 0x01} // P0301 misfire
		} else {
			rpm := uint16(v.rpm * 4)
			frame.Payload = []byte{0x41, 0x0C, byte(rpm >> 8), byte(rpm)}
		}
	}

	s.phase++
	if s.phase == 3 {
		s.phase = 0
		s.next = (s.next + 1) % len(s.vehicles)
	}
	return frame
}

// drive rolls the vehicle forward one simulated second.
func (s *Simulator) drive(v *vehicleState) {
	v.speedKmh += s.rng.Float64()*6 - 3
	if v.speedKmh < 0 {
		v.speedKmh = 0
	}
	if v.speedKmh > 130 {
		v.speedKmh = 130
	}
	v.rpm = 800 + v.speedKmh*45
	v.coolantC += s.rng.Float64()*0.4 - 0.2
	v.fuelPct -= 0.002
	if v.fuelPct < 0 {
		v.fuelPct = 100
	}
	v.heading += s.rng.Float64()*20 - 10

	distKm := v.speedKmh / 3600
	rad := v.heading * math.Pi / 180
	v.lat += distKm / 111.195 * math.Cos(rad)
	v.lng += distKm / (111.195 * math.Cos(v.lat*math.Pi/180)) * math.Sin(rad)
}

func speedFrame(kmh float64) []byte {
	raw := uint16(kmh * 100)
	b := make([]byte, 5, 7)
	binary.BigEndian.PutUint32(b, 0x0D0)
	b[4] = 2
	return append(b, byte(raw), byte(raw>>8))
}

// rmcSentence renders the vehicle position as a checksummed GPRMC sentence.
func rmcSentence(v *vehicleState) []byte {
	now := time.Now().UTC()
	latHemi, lngHemi := "N", "E"
	lat, lng := v.lat, v.lng
	if lat < 0 {
		lat, latHemi = -lat, "S"
	}
	if lng < 0 {
		lng, lngHemi = -lng, "W"
	}
	body := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%05.1f,%05.1f,%s,,",
		now.Format("150405"),
		nmeaDegrees(lat, 2), latHemi,
		nmeaDegrees(lng, 3), lngHemi,
		v.speedKmh/1.852, v.heading,
		now.Format("020106"))
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return []byte(fmt.Sprintf("$%s*%02X", body, sum))
}

// nmeaDegrees renders decimal degrees as DDMM.MMMM (degWidth 2 for
// latitude, 3 for longitude).
func nmeaDegrees(deg float64, degWidth int) string {
	d := math.Floor(deg)
	m := (deg - d) * 60
	return fmt.Sprintf("%0*d%07.4f", degWidth, int(d), m)
}
