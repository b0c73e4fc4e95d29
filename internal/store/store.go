package store

import (
	"context"
	"errors"
	"time"

	"fleettrack/internal/model"
)

// Store is the persistence interface used by the API server. Implementations
// must be safe for concurrent use.
type Store interface {
	// Telemetry
	InsertSample(ctx context.Context, s model.TelemetrySample) error
	LatestSample(ctx context.Context, vehicleID string) (model.TelemetrySample, error)
	ListSamples(ctx context.Context, vehicleID string, since, until time.Time, limit int) ([]model.TelemetrySample, error)

	// Alerts
	InsertAlerts(ctx context.Context, events []model.AlertEvent) error
	ListAlerts(ctx context.Context, vehicleID string, unackedOnly bool, limit int) ([]model.AlertEvent, error)
	AckAlert(ctx context.Context, id string) (model.AlertEvent, error)

	// ActiveDTCs returns the current trouble codes per vehicle, taken from
	// each vehicle's latest sample. Vehicles with no codes are omitted.
	ActiveDTCs(ctx context.Context) (map[string][]string, error)

	// Driver scores
	UpsertScore(ctx context.Context, s model.DriverScore) error
	ListScores(ctx context.Context) ([]model.DriverScore, error)

	// Vehicles
	UpsertVehicle(ctx context.Context, v model.Vehicle) error
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
}

var ErrNotFound = errors.New("not found")
