package score

import (
	"testing"
	"time"

	"fleettrack/internal/model"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func ev(kind model.AlertKind, sev model.AlertSeverity, ts time.Time) model.AlertEvent {
	return model.AlertEvent{Kind: kind, Severity: sev, Timestamp: ts}
}

func TestPenaltiesApplied(t *testing.T) {
	s := NewScorer(DefaultPenalties(), 0)
	got := s.Record("drv-1", ev(model.AlertHarshBrake, model.AlertWarning, t0))
	if got.Score != 97 || got.HarshBrakes != 1 {
		t.Fatalf("after harsh brake: %+v", got)
	}
	got = s.Record("drv-1", ev(model.AlertSpeeding, model.AlertWarning, t0.Add(time.Minute)))
	if got.Score != 95 || got.SpeedingEvents != 1 {
		t.Fatalf("after speeding warning: %+v", got)
	}
	got = s.Record("drv-1", ev(model.AlertSpeeding, model.AlertCritical, t0.Add(2*time.Minute)))
	if got.Score != 90 {
		t.Fatalf("critical speeding must cost more: %+v", got)
	}
}

func TestNonPenalizedEventsLeaveScore(t *testing.T) {
	s := NewScorer(DefaultPenalties(), 0)
	got := s.Record("drv-1", ev(model.AlertOverheat, model.AlertCritical, t0))
	if got.Score != 100 {
		t.Fatalf("vehicle-health events should not penalize the driver: %+v", got)
	}
	if got.UpdatedAt != t0 {
		t.Fatalf("timestamp should refresh: %+v", got)
	}
}

func TestScoreNeverLeavesRange(t *testing.T) {
	s := NewScorer(Penalties{HarshBrake: 40, HarshAccel: 40, SpeedingWarning: 40, SpeedingCritical: 40}, 0)
	kindsList := []model.AlertKind{
		model.AlertHarshBrake, model.AlertHarshAccel, model.AlertSpeeding,
		model.AlertHarshBrake, model.AlertSpeeding, model.AlertHarshAccel,
	}
	for i, k := range kindsList {
		got := s.Record("drv-1", ev(k, model.AlertCritical, t0.Add(time.Duration(i)*time.Minute)))
		if got.Score < 0 || got.Score > 100 {
			t.Fatalf("score out of range after event %d: %+v", i, got)
		}
	}
	if s.Score("drv-1").Score != 0 {
		t.Fatalf("floor should be 0: %+v", s.Score("drv-1"))
	}
}

func TestWindowRollover(t *testing.T) {
	s := NewScorer(DefaultPenalties(), 24*time.Hour)
	s.Record("drv-1", ev(model.AlertHarshBrake, model.AlertWarning, t0))
	got := s.Record("drv-1", ev(model.AlertHarshBrake, model.AlertWarning, t0.Add(25*time.Hour)))
	if got.Score != 97 || got.HarshBrakes != 1 {
		t.Fatalf("new window should start fresh: %+v", got)
	}
}

func TestUnknownDriverPristine(t *testing.T) {
	s := NewScorer(DefaultPenalties(), 0)
	if got := s.Score("drv-x"); got.Score != 100 {
		t.Fatalf("unseen driver: %+v", got)
	}
}
