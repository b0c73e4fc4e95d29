// Package geo computes geofence containment and entry/exit transitions.
package geo

import (
	"math"
	"sync"

	"fleettrack/internal/model"
)

const earthRadiusM = 6371000

// HaversineM returns the great-circle distance in meters between two
// WGS84 coordinates.
func HaversineM(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Contains tests whether a point lies inside the fence. Polygon containment
// uses ray casting on a flat local projection — fine at city scale, not for
// polygons spanning large latitude ranges.
func Contains(fence model.Geofence, p model.GeoPoint) bool {
	switch fence.Shape {
	case model.ShapeCircle:
		return HaversineM(fence.Center, p) <= fence.RadiusM
	case model.ShapePolygon:
		return pointInPolygon(fence.Vertices, p)
	}
	return false
}

func pointInPolygon(vs []model.GeoPoint, p model.GeoPoint) bool {
	if len(vs) < 3 {
		return false
	}
	inside := false
	j := len(vs) - 1
	for i := 0; i < len(vs); i++ {
		vi, vj := vs[i], vs[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lng < (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Transition is the result of one geofence evaluation.
type Transition int

const (
	None Transition = iota
	Entered
	Exited
)

func (t Transition) String() string {
	switch t {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	}
	return "none"
}

// Evaluator tracks per-(vehicle, fence) containment so detection is
// edge-triggered: a vehicle sitting on a boundary does not oscillate alerts
// on identical readings because state only changes when containment does.
type Evaluator struct {
	mu     sync.Mutex
	inside map[string]bool // vehicleID|fenceID -> currently inside
}

func NewEvaluator() *Evaluator {
	return &Evaluator{inside: map[string]bool{}}
}

// Evaluate updates containment state for one vehicle against one fence and
// returns the transition, if any. Inactive fences never transition.
func (e *Evaluator) Evaluate(vehicleID string, p model.GeoPoint, fence model.Geofence) Transition {
	if !fence.Active {
		return None
	}
	now := Contains(fence, p)
	key := vehicleID + "|" + fence.ID

	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.inside[key] // unseen pairs start outside
	e.inside[key] = now
	switch {
	case now && !was:
		return Entered
	case !now && was:
		return Exited
	}
	return None
}

// EvaluateAll runs Evaluate against every fence and returns the fences that
// transitioned, paired with their transitions.
func (e *Evaluator) EvaluateAll(vehicleID string, p model.GeoPoint, fences []model.Geofence) []Crossing {
	var out []Crossing
	for _, f := range fences {
		if t := e.Evaluate(vehicleID, p, f); t != None {
			out = append(out, Crossing{Fence: f, Transition: t})
		}
	}
	return out
}

// Crossing is one fired geofence transition.
type Crossing struct {
	Fence      model.Geofence
	Transition Transition
}

// Forget drops all containment state for a vehicle, e.g. when it is removed
// from the fleet.
func (e *Evaluator) Forget(vehicleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := vehicleID + "|"
	for k := range e.inside {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.inside, k)
		}
	}
}
