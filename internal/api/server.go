// Package api implements the HTTP surface of the tracker: frame ingest,
// telemetry reads, diagnostics, alerts, and the live alert stream.
package api

import (
	"context"
	"log"
	"strings"
	"sync"

	"fleettrack/internal/config"
	"fleettrack/internal/notify"
	"fleettrack/internal/store"
	"fleettrack/internal/track"
)

type Server struct {
	Store    store.Store
	Broker   EventBroker
	Tracker  *track.Tracker
	Notifier *notify.Notifier

	mu      sync.Mutex
	drivers map[string]string // vehicleId -> driverId
}

// NewServer wires the full pipeline. If DATABASE_URL is unset, uses the
// in-memory store; if REDIS_URL is unset, uses the in-process broker.
func NewServer(cfg *config.Config) (*Server, error) {
	var st store.Store
	if strings.TrimSpace(cfg.Server.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Server.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		st = pg
	}

	var broker EventBroker
	if cfg.Server.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.Server.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("api: redis broker unavailable, falling back to in-process: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	s := &Server{
		Store:    st,
		Broker:   broker,
		Notifier: notify.New(cfg.Notify.URL, cfg.Notify.Secret, cfg.Notify.MaxAttempts, cfg.Notify.Interval),
		drivers:  map[string]string{},
	}

	ctx := context.Background()
	for _, v := range cfg.Vehicles {
		if err := st.UpsertVehicle(ctx, v); err != nil {
			return nil, err
		}
		s.setDriver(v.ID, v.DriverID)
	}

	s.Tracker = track.New(track.Options{
		Rules:      cfg.Rules,
		Geofences:  cfg.ValidGeofences(),
		Signals:    cfg.Signals,
		Penalties:  *cfg.Penalties,
		Window:     cfg.Scoring.Window,
		QueueDepth: cfg.Queue.Depth,
		DriverFor:  s.driverFor,
	}, track.SinkFunc(s.handleResult))
	return s, nil
}

// handleResult persists and fans out everything one processed frame produced.
// Runs on tracker worker goroutines.
func (s *Server) handleResult(res track.Result) {
	ctx := context.Background()
	if err := s.Store.InsertSample(ctx, res.Sample); err != nil {
		log.Printf("api: persist sample for %s: %v", res.Sample.VehicleID, err)
	}
	if len(res.Events) == 0 {
		return
	}
	if err := s.Store.InsertAlerts(ctx, res.Events); err != nil {
		log.Printf("api: persist alerts for %s: %v", res.Sample.VehicleID, err)
	}
	for _, ev := range res.Events {
		s.Broker.Publish(ev)
	}
	s.Notifier.Publish(res.Events)

	score := s.Tracker.Scorer().Score(s.driverFor(res.Sample.VehicleID))
	if err := s.Store.UpsertScore(ctx, score); err != nil {
		log.Printf("api: persist score for %s: %v", score.DriverID, err)
	}
}

func (s *Server) driverFor(vehicleID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.drivers[vehicleID]; d != "" {
		return d
	}
	return vehicleID
}

func (s *Server) setDriver(vehicleID, driverID string) {
	if vehicleID == "" {
		return
	}
	s.mu.Lock()
	s.drivers[vehicleID] = driverID
	s.mu.Unlock()
}

// Close drains the pipeline and stops background workers.
func (s *Server) Close() {
	s.Tracker.Close()
	close(s.Notifier.Stop)
}
