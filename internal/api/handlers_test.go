package api

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleettrack/internal/config"
	"fleettrack/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ALERT_WEBHOOK_URL", "")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func canFrame(id uint32, payload ...byte) []byte {
	raw := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(raw, id)
	raw[4] = byte(len(payload))
	return append(raw, payload...)
}

func frameBody(vehicle, protocol string, payload []byte, ts time.Time) []byte {
	b, _ := json.Marshal(map[string]any{"frames": []map[string]any{{
		"vehicleId":  vehicle,
		"protocol":   protocol,
		"payload":    base64.StdEncoding.EncodeToString(payload),
		"receivedAt": ts.Format(time.RFC3339),
	}}})
	return b
}

func postFrames(t *testing.T, s *Server, body []byte) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/frames", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.FramesHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]int
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["rejected"] != 0 {
		t.Fatalf("ingest rejected %d frames", resp["rejected"])
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestIngestAndLatest(t *testing.T) {
	s := newTestServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// 9000 * 0.01 = 90 km/h
	postFrames(t, s, frameBody("v-1", "can", canFrame(0x0D0, 0x28, 0x23), base))
	s.Close() // drain the pipeline before reading

	rr := httptest.NewRecorder()
	s.VehicleByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/vehicles/v-1/latest", nil))
	if rr.Code != 200 {
		t.Fatalf("latest: got %d: %s", rr.Code, rr.Body.String())
	}
	var sm model.TelemetrySample
	if err := json.Unmarshal(rr.Body.Bytes(), &sm); err != nil {
		t.Fatal(err)
	}
	if sm.Engine.SpeedKmh == nil || *sm.Engine.SpeedKmh != 90 {
		t.Fatalf("speed = %v", sm.Engine.SpeedKmh)
	}

	rr = httptest.NewRecorder()
	s.VehicleByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/vehicles/v-9/latest", nil))
	if rr.Code != 404 {
		t.Fatalf("unknown vehicle: got %d", rr.Code)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	s := newTestServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Mode 03 response carrying P0335 (critical crankshaft sensor fault).
	postFrames(t, s, frameBody("v-2", "obd", []byte{0x43, 0x03, 0x35}, base))
	s.Close()

	rr := httptest.NewRecorder()
	s.VehicleByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/vehicles/v-2/diagnostics", nil))
	if rr.Code != 200 {
		t.Fatalf("diagnostics: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Codes         []string          `json:"codes"`
		Diagnoses     []model.Diagnosis `json:"diagnoses"`
		WorstSeverity model.DTCSeverity `json:"worstSeverity"`
		SafeToDrive   bool              `json:"safeToDrive"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Codes) != 1 || resp.Codes[0] != "P0335" {
		t.Fatalf("codes = %v", resp.Codes)
	}
	if resp.WorstSeverity != model.SeverityCritical || resp.SafeToDrive {
		t.Fatalf("verdict = %+v", resp)
	}
}

func TestAlertsListAndAck(t *testing.T) {
	s := newTestServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// 125 km/h trips the default 120 km/h speeding warning.
	postFrames(t, s, frameBody("v-3", "can", canFrame(0x0D0, 0xD4, 0x30), base))
	s.Close()

	rr := httptest.NewRecorder()
	s.AlertsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/alerts?vehicle=v-3&open=true", nil))
	if rr.Code != 200 {
		t.Fatalf("alerts: got %d", rr.Code)
	}
	var list struct {
		Items []model.AlertEvent `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].Kind != model.AlertSpeeding {
		t.Fatalf("alerts = %+v", list.Items)
	}

	rr = httptest.NewRecorder()
	s.AlertAckHandler(rr, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/alerts/%s/ack", list.Items[0].ID), nil))
	if rr.Code != 200 {
		t.Fatalf("ack: got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.AlertsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/alerts?vehicle=v-3&open=true", nil))
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 0 {
		t.Fatalf("open alerts after ack = %+v", list.Items)
	}

	// Score for the driver took the speeding penalty.
	rr = httptest.NewRecorder()
	s.ScoresHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scores", nil))
	var scores struct {
		Items []model.DriverScore `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &scores)
	if len(scores.Items) != 1 || scores.Items[0].Score != 98 {
		t.Fatalf("scores = %+v", scores.Items)
	}
}

func TestFleetHealth(t *testing.T) {
	s := newTestServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	postFrames(t, s, frameBody("v-4", "obd", []byte{0x43, 0x03, 0x35}, base))
	postFrames(t, s, frameBody("v-5", "can", canFrame(0x0D0, 0x10, 0x00), base))
	s.Close()

	rr := httptest.NewRecorder()
	s.FleetHealthHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/fleet/health", nil))
	if rr.Code != 200 {
		t.Fatalf("fleet health: got %d", rr.Code)
	}
	var fh model.FleetHealth
	if err := json.Unmarshal(rr.Body.Bytes(), &fh); err != nil {
		t.Fatal(err)
	}
	if fh.WithFaults != 1 || fh.WorstSeverity != model.SeverityCritical {
		t.Fatalf("fleet health = %+v", fh)
	}
}

func TestVehiclesRegisterAndGet(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	body := []byte(`{"id":"v-6","name":"Van 6","driverId":"d-6"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/vehicles", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.VehiclesHandler(rr, req)
	if rr.Code != 201 {
		t.Fatalf("register: got %d", rr.Code)
	}
	if d := s.driverFor("v-6"); d != "d-6" {
		t.Fatalf("driver mapping = %q", d)
	}

	rr = httptest.NewRecorder()
	s.VehicleByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/vehicles/v-6", nil))
	if rr.Code != 200 {
		t.Fatalf("get: got %d", rr.Code)
	}
}

func TestFramesValidation(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	rr := httptest.NewRecorder()
	s.FramesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/frames", nil))
	if rr.Code != 405 {
		t.Fatalf("method: got %d", rr.Code)
	}

	body, _ := json.Marshal(map[string]any{"frames": []map[string]any{
		{"vehicleId": "v-7", "protocol": "serial", "payload": "AA=="},
		{"vehicleId": "", "protocol": "can", "payload": "AA=="},
		{"vehicleId": "v-7", "protocol": "can", "payload": "not-base64!"},
	}})
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/frames", bytes.NewReader(body))
	s.FramesHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: got %d", rr.Code)
	}
	var resp map[string]int
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["accepted"] != 0 || resp["rejected"] != 3 {
		t.Fatalf("counts = %+v", resp)
	}
}
