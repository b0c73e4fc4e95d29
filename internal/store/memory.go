package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleettrack/internal/model"
)

// historyCap bounds the per-vehicle sample history the memory store retains.
const historyCap = 10000

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	latest   map[string]model.TelemetrySample   // vehicleId -> newest sample
	history  map[string][]model.TelemetrySample // vehicleId -> samples in insert order
	alerts   map[string]*model.AlertEvent       // alertId -> event
	alertSeq []string                           // alert ids in insert order
	scores   map[string]model.DriverScore       // driverId -> score
	vehicles map[string]model.Vehicle           // vehicleId -> vehicle
}

func NewMemory() *Memory {
	return &Memory{
		latest:   map[string]model.TelemetrySample{},
		history:  map[string][]model.TelemetrySample{},
		alerts:   map[string]*model.AlertEvent{},
		scores:   map[string]model.DriverScore{},
		vehicles: map[string]model.Vehicle{},
	}
}

func (m *Memory) InsertSample(ctx context.Context, s model.TelemetrySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[s.VehicleID] = s
	h := append(m.history[s.VehicleID], s)
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	m.history[s.VehicleID] = h
	return nil
}

func (m *Memory) LatestSample(ctx context.Context, vehicleID string) (model.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.latest[vehicleID]
	if !ok {
		return model.TelemetrySample{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSamples(ctx context.Context, vehicleID string, since, until time.Time, limit int) ([]model.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.TelemetrySample{}
	for _, s := range m.history[vehicleID] {
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && s.Timestamp.After(until) {
			continue
		}
		out = append(out, s)
	}
	// Newest first, capped.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) InsertAlerts(ctx context.Context, events []model.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		ev := ev
		m.alerts[ev.ID] = &ev
		m.alertSeq = append(m.alertSeq, ev.ID)
	}
	return nil
}

func (m *Memory) ListAlerts(ctx context.Context, vehicleID string, unackedOnly bool, limit int) ([]model.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.AlertEvent{}
	for i := len(m.alertSeq) - 1; i >= 0 && len(out) < limit; i-- {
		ev := m.alerts[m.alertSeq[i]]
		if vehicleID != "" && ev.VehicleID != vehicleID {
			continue
		}
		if unackedOnly && ev.Acknowledged {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (m *Memory) AckAlert(ctx context.Context, id string) (model.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.alerts[id]
	if !ok {
		return model.AlertEvent{}, ErrNotFound
	}
	ev.Acknowledged = true
	return *ev, nil
}

func (m *Memory) ActiveDTCs(ctx context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]string{}
	for id, s := range m.latest {
		if len(s.DTCCodes) > 0 {
			out[id] = append([]string(nil), s.DTCCodes...)
		}
	}
	return out, nil
}

func (m *Memory) UpsertScore(ctx context.Context, s model.DriverScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[s.DriverID] = s
	return nil
}

func (m *Memory) ListScores(ctx context.Context) ([]model.DriverScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DriverScore, 0, len(m.scores))
	for _, s := range m.scores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

func (m *Memory) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
