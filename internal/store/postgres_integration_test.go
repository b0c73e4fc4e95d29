//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"fleettrack/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	ctx := t.Context()
	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s := model.TelemetrySample{VehicleID: "it-v1", Timestamp: time.Now().UTC(), DTCCodes: []string{"P0301"}}
	if err := p.InsertSample(ctx, s); err != nil {
		t.Fatalf("InsertSample: %v", err)
	}
	got, err := p.LatestSample(ctx, "it-v1")
	if err != nil {
		t.Fatalf("LatestSample: %v", err)
	}
	if got.VehicleID != "it-v1" || len(got.DTCCodes) != 1 {
		t.Fatalf("sample = %+v", got)
	}
}
