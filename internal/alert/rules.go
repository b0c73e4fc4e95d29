package alert

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"fleettrack/internal/model"
)

// Direction says which side of the threshold triggers the rule.
type Direction int

const (
	// Above fires when the value rises past the threshold (speeding, overheat).
	Above Direction = iota
	// Below fires when the value drops past it (low fuel, low battery).
	Below
)

// Rule is the configuration for one threshold rule family. Critical is
// optional: HasCritical false means the rule tops out at Warning (battery).
// Hysteresis widens the recovery edge so a value hovering at the threshold
// does not flap between levels.
type Rule struct {
	Kind        model.AlertKind
	Direction   Direction
	Warning     float64
	Critical    float64
	HasCritical bool
	Hysteresis  float64
	Refire      time.Duration
}

// UnmarshalYAML decodes a configured rule. Direction follows from the kind,
// an absent critical threshold means a warning-only rule, and refire accepts
// Go duration strings ("5m", "90s").
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Kind       model.AlertKind `yaml:"kind"`
		Warning    float64         `yaml:"warning"`
		Critical   *float64        `yaml:"critical"`
		Hysteresis float64         `yaml:"hysteresis"`
		Refire     string          `yaml:"refire"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Kind = raw.Kind
	r.Direction = directionFor(raw.Kind)
	r.Warning = raw.Warning
	if raw.Critical != nil {
		r.Critical = *raw.Critical
		r.HasCritical = true
	}
	r.Hysteresis = raw.Hysteresis
	r.Refire = defaultRefire
	if raw.Refire != "" {
		d, err := time.ParseDuration(raw.Refire)
		if err != nil {
			return fmt.Errorf("rule %s: refire: %w", raw.Kind, err)
		}
		r.Refire = d
	}
	return nil
}

// directionFor maps each rule family to the side of the threshold it
// triggers on.
func directionFor(kind model.AlertKind) Direction {
	switch kind {
	case model.AlertLowFuel, model.AlertLowBattery:
		return Below
	}
	return Above
}

// Default re-notification interval for a sustained condition.
const defaultRefire = 5 * time.Minute

// DefaultRules returns the stock threshold set. The numbers are contract:
// downstream consumers rely on them when no fleet override is configured.
func DefaultRules() []Rule {
	return []Rule{
		{Kind: model.AlertSpeeding, Direction: Above, Warning: 120, Critical: 150, HasCritical: true, Hysteresis: 5, Refire: defaultRefire},
		{Kind: model.AlertOverheat, Direction: Above, Warning: 100, Critical: 115, HasCritical: true, Hysteresis: 2, Refire: defaultRefire},
		{Kind: model.AlertOverRev, Direction: Above, Warning: 5500, Critical: 6500, HasCritical: true, Hysteresis: 200, Refire: defaultRefire},
		{Kind: model.AlertLowFuel, Direction: Below, Warning: 15, Critical: 5, HasCritical: true, Hysteresis: 2, Refire: defaultRefire},
		{Kind: model.AlertLowBattery, Direction: Below, Warning: 11.5, Hysteresis: 0.3, Refire: defaultRefire},
		{Kind: model.AlertHarshBrake, Direction: Above, Warning: 8, Refire: defaultRefire},
		{Kind: model.AlertHarshAccel, Direction: Above, Warning: 5, Refire: defaultRefire},
	}
}

// Validate rejects rules the engine cannot evaluate coherently. A failed
// rule is disabled with a logged error, never fatal for the whole engine.
func (r Rule) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("rule has no kind")
	}
	if r.Hysteresis < 0 {
		return fmt.Errorf("rule %s: negative hysteresis %g", r.Kind, r.Hysteresis)
	}
	if r.Refire < 0 {
		return fmt.Errorf("rule %s: negative refire interval %s", r.Kind, r.Refire)
	}
	if r.HasCritical {
		if r.Direction == Above && r.Critical <= r.Warning {
			return fmt.Errorf("rule %s: critical %g must exceed warning %g", r.Kind, r.Critical, r.Warning)
		}
		if r.Direction == Below && r.Critical >= r.Warning {
			return fmt.Errorf("rule %s: critical %g must be below warning %g", r.Kind, r.Critical, r.Warning)
		}
	}
	return nil
}

// Level is a rule's position in the Normal -> Warning -> Critical ladder.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
)

func (l Level) severity() model.AlertSeverity {
	if l == Critical {
		return model.AlertCritical
	}
	return model.AlertWarning
}

// next computes the level transition for a value given the current level.
// Climbing only needs the raw threshold; descending needs threshold minus
// hysteresis (or plus, for Below rules), which is what stops flapping.
func (r Rule) next(v float64, cur Level) Level {
	exceeds := func(threshold float64) bool {
		if r.Direction == Below {
			return v <= threshold
		}
		return v >= threshold
	}
	recovered := func(threshold float64) bool {
		if r.Direction == Below {
			return v >= threshold+r.Hysteresis
		}
		return v <= threshold-r.Hysteresis
	}

	if r.HasCritical && exceeds(r.Critical) {
		return Critical
	}
	switch cur {
	case Critical:
		if !recovered(r.Critical) {
			return Critical
		}
		if exceeds(r.Warning) && !recovered(r.Warning) {
			return Warning
		}
		if recovered(r.Warning) {
			return Normal
		}
		return Warning
	case Warning:
		if recovered(r.Warning) {
			return Normal
		}
		return Warning
	default:
		if exceeds(r.Warning) {
			return Warning
		}
		return Normal
	}
}
