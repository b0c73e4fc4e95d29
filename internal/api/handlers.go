package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleettrack/internal/dtc"
	"fleettrack/internal/metrics"
	"fleettrack/internal/model"
	"fleettrack/internal/store"
	"fleettrack/internal/track"
)

// Routes builds the full HTTP mux for the service.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/frames", s.rateLimited(http.HandlerFunc(s.FramesHandler)))

	mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)
	mux.HandleFunc("/v1/vehicles/", s.VehicleByIDHandler)

	mux.HandleFunc("/v1/alerts", s.AlertsHandler)
	mux.HandleFunc("/v1/alerts/stream", s.AlertStreamHandler)
	mux.HandleFunc("/v1/alerts/", s.AlertAckHandler)

	mux.HandleFunc("/v1/fleet/health", s.FleetHealthHandler)
	mux.HandleFunc("/v1/scores", s.ScoresHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return mux
}

type frameIn struct {
	VehicleID  string    `json:"vehicleId"`
	Protocol   string    `json:"protocol"`
	Payload    string    `json:"payload"` // base64
	ReceivedAt time.Time `json:"receivedAt,omitempty"`
}

// FramesHandler accepts a batch of raw frames for the pipeline.
// POST /v1/frames {"frames":[{"vehicleId":"v-1","protocol":"can","payload":"<base64>"}]}
func (s *Server) FramesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, 405, "Method Not Allowed", "", r.URL.Path)
		return
	}
	var req struct {
		Frames []frameIn `json:"frames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, 400, "Bad Request", err.Error(), r.URL.Path)
		return
	}
	if len(req.Frames) == 0 {
		writeProblem(w, 400, "Bad Request", "frames array required", r.URL.Path)
		return
	}
	accepted, rejected := 0, 0
	for _, f := range req.Frames {
		raw, err := base64.StdEncoding.DecodeString(f.Payload)
		if err != nil || !validProtocol(f.Protocol) || f.VehicleID == "" {
			rejected++
			continue
		}
		if err := s.Tracker.Ingest(track.RawFrame{
			VehicleID:  f.VehicleID,
			Protocol:   track.Protocol(f.Protocol),
			Payload:    raw,
			ReceivedAt: f.ReceivedAt,
		}); err != nil {
			rejected++
			continue
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted, "rejected": rejected})
}

func validProtocol(p string) bool {
	switch track.Protocol(p) {
	case track.ProtocolOBD, track.ProtocolCAN, track.ProtocolNMEA:
		return true
	}
	return false
}

// VehiclesHandler lists or registers vehicles.
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vs, err := s.Store.ListVehicles(r.Context())
		if err != nil {
			writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": vs})
	case http.MethodPost:
		var v model.Vehicle
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.ID == "" {
			writeProblem(w, 400, "Bad Request", "vehicle id required", r.URL.Path)
			return
		}
		if err := s.Store.UpsertVehicle(r.Context(), v); err != nil {
			writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		s.setDriver(v.ID, v.DriverID)
		writeJSON(w, 201, v)
	default:
		writeProblem(w, 405, "Method Not Allowed", "", r.URL.Path)
	}
}

// VehicleByIDHandler serves /v1/vehicles/{id} and its telemetry subpaths.
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeProblem(w, 400, "Bad Request", "vehicle id required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		writeProblem(w, 405, "Method Not Allowed", "", r.URL.Path)
		return
	}
	switch sub {
	case "":
		v, err := s.Store.GetVehicle(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Not Found", "unknown vehicle "+id, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, v)
	case "latest":
		sm, err := s.Store.LatestSample(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Not Found", "no telemetry for "+id, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, sm)
	case "history":
		since, until := parseTime(r, "since"), parseTime(r, "until")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err := s.Store.ListSamples(r.Context(), id, since, until, limit)
		if err != nil {
			writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items})
	case "diagnostics":
		s.diagnostics(w, r, id)
	default:
		writeProblem(w, 404, "Not Found", "unknown resource "+sub, r.URL.Path)
	}
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request, id string) {
	sm, err := s.Store.LatestSample(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, 404, "Not Found", "no telemetry for "+id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	an := s.Tracker.Analyzer()
	diags := an.Analyze(sm.DTCCodes)
	writeJSON(w, 200, map[string]any{
		"vehicleId":     id,
		"codes":         sm.DTCCodes,
		"diagnoses":     diags,
		"worstSeverity": dtc.WorstSeverity(diags),
		"safeToDrive":   dtc.SafeToDrive(diags),
		"suggestions":   an.Suggestions(diags),
	})
}

// FleetHealthHandler rolls active trouble codes up across the fleet.
func (s *Server) FleetHealthHandler(w http.ResponseWriter, r *http.Request) {
	byVehicle, err := s.Store.ActiveDTCs(r.Context())
	if err != nil {
		writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, s.Tracker.Analyzer().FleetRollup(byVehicle))
}

// AlertsHandler lists alerts, newest first.
// GET /v1/alerts?vehicle=v-1&open=true&limit=50
func (s *Server) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeProblem(w, 405, "Method Not Allowed", "", r.URL.Path)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	open := r.URL.Query().Get("open") == "true"
	items, err := s.Store.ListAlerts(r.Context(), r.URL.Query().Get("vehicle"), open, limit)
	if err != nil {
		writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

// AlertAckHandler acknowledges an alert. POST /v1/alerts/{id}/ack
func (s *Server) AlertAckHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/alerts/")
	id, action, _ := strings.Cut(rest, "/")
	if action != "ack" || r.Method != http.MethodPost {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	ev, err := s.Store.AckAlert(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, 404, "Not Found", "unknown alert "+id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, ev)
}

// ScoresHandler lists driver behavior scores.
func (s *Server) ScoresHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListScores(r.Context())
	if err != nil {
		writeProblem(w, 500, "Internal Error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

func parseTime(r *http.Request, key string) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
