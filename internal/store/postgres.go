package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleettrack/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping checks database reachability, for readiness probes.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate creates the schema when missing. Statements are idempotent; safe
// to run at every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_samples (
			vehicle_id text NOT NULL,
			ts timestamptz NOT NULL,
			sample jsonb NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS telemetry_samples_vehicle_ts ON telemetry_samples (vehicle_id, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id uuid PRIMARY KEY,
			vehicle_id text NOT NULL,
			kind text NOT NULL,
			severity text NOT NULL,
			value double precision NOT NULL,
			threshold double precision NOT NULL,
			message text NOT NULL,
			ts timestamptz NOT NULL,
			acknowledged boolean NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS alerts_vehicle_ts ON alerts (vehicle_id, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS driver_scores (
			driver_id text PRIMARY KEY,
			score double precision NOT NULL,
			harsh_brakes int NOT NULL,
			harsh_accels int NOT NULL,
			speeding_events int NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id text PRIMARY KEY,
			name text,
			plate text,
			driver_id text
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) InsertSample(ctx context.Context, s model.TelemetrySample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO telemetry_samples (vehicle_id, ts, sample) VALUES ($1,$2,$3)`,
		s.VehicleID, s.Timestamp, b)
	return err
}

func (p *Postgres) LatestSample(ctx context.Context, vehicleID string) (model.TelemetrySample, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT sample FROM telemetry_samples WHERE vehicle_id=$1 ORDER BY ts DESC LIMIT 1`,
		vehicleID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TelemetrySample{}, ErrNotFound
	}
	if err != nil {
		return model.TelemetrySample{}, err
	}
	var s model.TelemetrySample
	if err := json.Unmarshal(b, &s); err != nil {
		return model.TelemetrySample{}, err
	}
	return s, nil
}

func (p *Postgres) ListSamples(ctx context.Context, vehicleID string, since, until time.Time, limit int) ([]model.TelemetrySample, error) {
	if limit <= 0 {
		limit = 100
	}
	if until.IsZero() {
		until = time.Now().UTC().Add(24 * time.Hour)
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT sample FROM telemetry_samples WHERE vehicle_id=$1 AND ts >= $2 AND ts <= $3 ORDER BY ts DESC LIMIT $4`,
		vehicleID, since, until, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TelemetrySample{}
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var s model.TelemetrySample
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertAlerts(ctx context.Context, events []model.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, ev := range events {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO alerts (id, vehicle_id, kind, severity, value, threshold, message, ts, acknowledged)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			ev.ID, ev.VehicleID, string(ev.Kind), string(ev.Severity), ev.Value, ev.Threshold, ev.Message, ev.Timestamp, ev.Acknowledged)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListAlerts(ctx context.Context, vehicleID string, unackedOnly bool, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, vehicle_id, kind, severity, value, threshold, message, ts, acknowledged FROM alerts WHERE 1=1`
	args := []any{}
	if vehicleID != "" {
		args = append(args, vehicleID)
		q += fmt.Sprintf(" AND vehicle_id=$%d", len(args))
	}
	if unackedOnly {
		q += " AND acknowledged=false"
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AlertEvent{}
	for rows.Next() {
		var ev model.AlertEvent
		if err := rows.Scan(&ev.ID, &ev.VehicleID, &ev.Kind, &ev.Severity, &ev.Value, &ev.Threshold, &ev.Message, &ev.Timestamp, &ev.Acknowledged); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) AckAlert(ctx context.Context, id string) (model.AlertEvent, error) {
	var ev model.AlertEvent
	err := p.db.QueryRowContext(ctx,
		`UPDATE alerts SET acknowledged=true WHERE id=$1
		 RETURNING id, vehicle_id, kind, severity, value, threshold, message, ts, acknowledged`,
		id).Scan(&ev.ID, &ev.VehicleID, &ev.Kind, &ev.Severity, &ev.Value, &ev.Threshold, &ev.Message, &ev.Timestamp, &ev.Acknowledged)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertEvent{}, ErrNotFound
	}
	if err != nil {
		return model.AlertEvent{}, err
	}
	return ev, nil
}

func (p *Postgres) ActiveDTCs(ctx context.Context) (map[string][]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT ON (vehicle_id) vehicle_id, sample->'dtcCodes'
		 FROM telemetry_samples ORDER BY vehicle_id, ts DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var id string
		var b []byte
		if err := rows.Scan(&id, &b); err != nil {
			return nil, err
		}
		if len(b) == 0 {
			continue
		}
		var codes []string
		if err := json.Unmarshal(b, &codes); err != nil {
			continue
		}
		if len(codes) > 0 {
			out[id] = codes
		}
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertScore(ctx context.Context, s model.DriverScore) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO driver_scores (driver_id, score, harsh_brakes, harsh_accels, speeding_events, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (driver_id) DO UPDATE SET score=EXCLUDED.score, harsh_brakes=EXCLUDED.harsh_brakes,
		   harsh_accels=EXCLUDED.harsh_accels, speeding_events=EXCLUDED.speeding_events, updated_at=EXCLUDED.updated_at`,
		s.DriverID, s.Score, s.HarshBrakes, s.HarshAccels, s.SpeedingEvents, s.UpdatedAt)
	return err
}

func (p *Postgres) ListScores(ctx context.Context) ([]model.DriverScore, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT driver_id, score, harsh_brakes, harsh_accels, speeding_events, updated_at FROM driver_scores ORDER BY driver_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DriverScore{}
	for rows.Next() {
		var s model.DriverScore
		if err := rows.Scan(&s.DriverID, &s.Score, &s.HarshBrakes, &s.HarshAccels, &s.SpeedingEvents, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, name, plate, driver_id) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, plate=EXCLUDED.plate, driver_id=EXCLUDED.driver_id`,
		v.ID, v.Name, v.Plate, v.DriverID)
	return err
}

func (p *Postgres) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	var v model.Vehicle
	err := p.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(name,''), COALESCE(plate,''), COALESCE(driver_id,'') FROM vehicles WHERE id=$1`,
		id).Scan(&v.ID, &v.Name, &v.Plate, &v.DriverID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, ErrNotFound
	}
	if err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

func (p *Postgres) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, COALESCE(name,''), COALESCE(plate,''), COALESCE(driver_id,'') FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.Plate, &v.DriverID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
