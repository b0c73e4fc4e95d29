// Package alert evaluates normalized telemetry against threshold rules and
// emits alert events, with hysteresis and re-fire suppression per vehicle.
package alert

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
)

// ruleState is the engine's memory for one (vehicle, rule) pair.
type ruleState struct {
	level     Level
	lastFired time.Time
	fired     bool
}

// vehicleState is everything the engine retains for one vehicle. It is
// owned exclusively while that vehicle's sample is evaluated.
type vehicleState struct {
	prev       *model.TelemetrySample
	rules      map[model.AlertKind]*ruleState
	activeDTCs map[string]bool
}

// Engine is the stateful alert rule evaluator. Construct once, feed samples
// in per-vehicle arrival order; samples for different vehicles may be fed
// concurrently.
type Engine struct {
	rules []Rule

	mu     sync.Mutex
	states map[string]*vehicleState
}

// NewEngine validates and installs the rule set. Invalid rules are disabled
// with a logged error rather than failing engine construction.
func NewEngine(rules []Rule) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	ok := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			log.Printf("alert: disabling rule: %v", err)
			continue
		}
		ok = append(ok, r)
	}
	return &Engine{rules: ok, states: map[string]*vehicleState{}}
}

// Rules returns the active (validated) rule set.
func (e *Engine) Rules() []Rule { return e.rules }

// Evaluate runs one sample through every rule plus the edge-triggered DTC
// and geofence checks, returning the events that fired. Diagnoses and
// crossings are supplied by the caller so the engine holds no decoding or
// geometry logic of its own.
func (e *Engine) Evaluate(s *model.TelemetrySample, diags []model.Diagnosis, crossings []geo.Crossing) []model.AlertEvent {
	e.mu.Lock()
	st := e.states[s.VehicleID]
	if st == nil {
		st = &vehicleState{rules: map[model.AlertKind]*ruleState{}, activeDTCs: map[string]bool{}}
		e.states[s.VehicleID] = st
	}
	e.mu.Unlock()

	// st is exclusively owned here: the orchestrator serializes samples
	// per vehicle, so no further locking on the vehicle state.
	var events []model.AlertEvent
	for _, r := range e.rules {
		v, ok := triggerValue(r.Kind, s, st.prev)
		if !ok {
			continue
		}
		rs := st.rules[r.Kind]
		if rs == nil {
			rs = &ruleState{}
			st.rules[r.Kind] = rs
		}
		next := r.next(v, rs.level)
		fire := next > rs.level ||
			(next == rs.level && next > Normal && r.Refire > 0 && rs.fired &&
				s.Timestamp.Sub(rs.lastFired) >= r.Refire)
		rs.level = next
		if fire {
			rs.lastFired = s.Timestamp
			rs.fired = true
			events = append(events, e.newEvent(s, r, next.severity(), v))
		}
	}

	// DTC detection is edge-triggered: exactly one event per newly reported
	// code. Codes stay latched until Reset; a mode-03 read returns every
	// stored code, so re-reports of a standing fault stay quiet.
	for _, d := range diags {
		if st.activeDTCs[d.Code] {
			continue
		}
		st.activeDTCs[d.Code] = true
		sev := model.AlertWarning
		if d.Severity == model.SeverityCritical {
			sev = model.AlertCritical
		}
		events = append(events, model.AlertEvent{
			ID:        uuid.New().String(),
			VehicleID: s.VehicleID,
			Kind:      model.AlertDTCDetected,
			Severity:  sev,
			Message:   fmt.Sprintf("DTC detected: %s (%s)", d.Code, d.Description),
			Timestamp: s.Timestamp,
		})
	}

	// Geofence transitions are already edge-triggered by the evaluator;
	// just convert them, no re-fire interval.
	for _, c := range crossings {
		kind := model.AlertGeofenceIn
		if c.Transition == geo.Exited {
			kind = model.AlertGeofenceOut
		}
		events = append(events, model.AlertEvent{
			ID:        uuid.New().String(),
			VehicleID: s.VehicleID,
			Kind:      kind,
			Severity:  model.AlertWarning,
			Threshold: c.Fence.RadiusM,
			Message:   fmt.Sprintf("Vehicle %s geofence %q", c.Transition, c.Fence.Name),
			Timestamp: s.Timestamp,
		})
	}

	st.prev = s
	return events
}

// Reset drops all evaluation state for a vehicle.
func (e *Engine) Reset(vehicleID string) {
	e.mu.Lock()
	delete(e.states, vehicleID)
	e.mu.Unlock()
}

func (e *Engine) newEvent(s *model.TelemetrySample, r Rule, sev model.AlertSeverity, v float64) model.AlertEvent {
	threshold := r.Warning
	if sev == model.AlertCritical {
		threshold = r.Critical
	}
	return model.AlertEvent{
		ID:        uuid.New().String(),
		VehicleID: s.VehicleID,
		Kind:      r.Kind,
		Severity:  sev,
		Value:     v,
		Threshold: threshold,
		Message:   fmt.Sprintf("%s %s: %.1f (threshold %.1f)", r.Kind, sev, v, threshold),
		Timestamp: s.Timestamp,
	}
}

// triggerValue extracts the quantity a rule watches from the sample.
// Rate-based rules derive acceleration from the speed delta against the
// previous sample; without a previous sample they have no value yet.
func triggerValue(kind model.AlertKind, s, prev *model.TelemetrySample) (float64, bool) {
	switch kind {
	case model.AlertSpeeding:
		return s.Speed()
	case model.AlertOverheat:
		if s.Engine.CoolantTempC != nil {
			return *s.Engine.CoolantTempC, true
		}
	case model.AlertOverRev:
		if s.Engine.RPM != nil {
			return *s.Engine.RPM, true
		}
	case model.AlertLowFuel:
		if s.Engine.FuelPct != nil {
			return *s.Engine.FuelPct, true
		}
	case model.AlertLowBattery:
		if s.Engine.BatteryVoltage != nil {
			return *s.Engine.BatteryVoltage, true
		}
	case model.AlertHarshBrake:
		// Deceleration magnitude; zero while not decelerating so the
		// rule state recovers between events.
		if a, ok := accelMS2(s, prev); ok {
			return math.Max(0, -a), true
		}
	case model.AlertHarshAccel:
		if a, ok := accelMS2(s, prev); ok {
			return math.Max(0, a), true
		}
	}
	return 0, false
}

// accelMS2 returns the signed acceleration in m/s² between consecutive
// samples of one vehicle.
func accelMS2(s, prev *model.TelemetrySample) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	cur, ok1 := s.Speed()
	old, ok2 := prev.Speed()
	dt := s.Timestamp.Sub(prev.Timestamp).Seconds()
	if !ok1 || !ok2 || dt <= 0 {
		return 0, false
	}
	return (cur - old) / 3.6 / dt, true
}
