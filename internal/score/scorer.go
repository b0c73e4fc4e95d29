// Package score maintains rolling driver safety scores from the alert
// stream. It consumes events only; it has no thresholds of its own.
package score

import (
	"sync"
	"time"

	"fleettrack/internal/model"
)

// Penalties configures how many points each event class costs. Values are
// configuration, not hard-coded arithmetic, so fleets can tune them.
type Penalties struct {
	HarshBrake       float64 `yaml:"harshBrake"`
	HarshAccel       float64 `yaml:"harshAccel"`
	SpeedingWarning  float64 `yaml:"speedingWarning"`
	SpeedingCritical float64 `yaml:"speedingCritical"`
}

// DefaultPenalties mirrors fleet policy: a critical speeding event costs
// more than a warning.
func DefaultPenalties() Penalties {
	return Penalties{HarshBrake: 3, HarshAccel: 2, SpeedingWarning: 2, SpeedingCritical: 5}
}

// Scorer accumulates penalties per driver within a scoring window. Scores
// start at 100 and are clamped to [0, 100].
type Scorer struct {
	penalties Penalties
	window    time.Duration

	mu      sync.Mutex
	drivers map[string]*driverWindow
}

type driverWindow struct {
	score       model.DriverScore
	windowStart time.Time
}

// NewScorer builds a scorer with the given penalty table and rolling window
// length. A zero window means the window never rolls over.
func NewScorer(p Penalties, window time.Duration) *Scorer {
	return &Scorer{penalties: p, window: window, drivers: map[string]*driverWindow{}}
}

// Record applies one alert event to a driver's score. Events the scorer
// does not penalize (geofence, DTC, overheat, ...) leave the score alone
// but still refresh the update timestamp.
func (s *Scorer) Record(driverID string, ev model.AlertEvent) model.DriverScore {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.drivers[driverID]
	if d == nil {
		d = &driverWindow{score: model.DriverScore{DriverID: driverID, Score: 100}, windowStart: ev.Timestamp}
		s.drivers[driverID] = d
	}
	if s.window > 0 && ev.Timestamp.Sub(d.windowStart) >= s.window {
		// New scoring window: counts and score reset, history belongs to
		// the persistence layer.
		d.score = model.DriverScore{DriverID: driverID, Score: 100}
		d.windowStart = ev.Timestamp
	}

	switch ev.Kind {
	case model.AlertHarshBrake:
		d.score.HarshBrakes++
		d.score.Score -= s.penalties.HarshBrake
	case model.AlertHarshAccel:
		d.score.HarshAccels++
		d.score.Score -= s.penalties.HarshAccel
	case model.AlertSpeeding:
		d.score.SpeedingEvents++
		if ev.Severity == model.AlertCritical {
			d.score.Score -= s.penalties.SpeedingCritical
		} else {
			d.score.Score -= s.penalties.SpeedingWarning
		}
	}
	d.score.Score = clamp(d.score.Score)
	d.score.UpdatedAt = ev.Timestamp
	return d.score
}

// Score returns the current score for a driver; drivers with no recorded
// events report a pristine 100.
func (s *Scorer) Score(driverID string) model.DriverScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drivers[driverID]; ok {
		return d.score
	}
	return model.DriverScore{DriverID: driverID, Score: 100}
}

// All returns every tracked driver's current score.
func (s *Scorer) All() []model.DriverScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DriverScore, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d.score)
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
