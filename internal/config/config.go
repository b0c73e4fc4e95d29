package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fleettrack/internal/alert"
	"fleettrack/internal/decode"
	"fleettrack/internal/model"
	"fleettrack/internal/score"
)

// Config is the full on-disk configuration for trackerd. Every section is
// optional; missing sections fall back to built-in defaults.
type Config struct {
	Server    Server            `yaml:"server"`
	Rules     []alert.Rule      `yaml:"alert_rules"`
	Vehicles  []model.Vehicle   `yaml:"vehicles"`
	Geofences []model.Geofence  `yaml:"geofences"`
	Signals   decode.SignalMap  `yaml:"can_signals"`
	Penalties *score.Penalties  `yaml:"penalties"`
	Scoring   Scoring           `yaml:"scoring"`
	Notify    Notify            `yaml:"notify"`
	Queue     Queue             `yaml:"queue"`
}

type Server struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
}

// Notify configures the alert webhook worker.
type Notify struct {
	URL         string
	Secret      string
	MaxAttempts int
	Interval    time.Duration
}

// UnmarshalYAML accepts Go duration strings for the delivery interval.
func (n *Notify) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		URL         string `yaml:"url"`
		Secret      string `yaml:"secret"`
		MaxAttempts int    `yaml:"max_attempts"`
		Interval    string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	n.URL, n.Secret, n.MaxAttempts = raw.URL, raw.Secret, raw.MaxAttempts
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("notify.interval: %w", err)
		}
		n.Interval = d
	}
	return nil
}

// Scoring tunes the driver behavior scorer.
type Scoring struct {
	Window time.Duration
}

// UnmarshalYAML accepts Go duration strings for the rolling window.
func (s *Scoring) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Window string `yaml:"window"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Window != "" {
		d, err := time.ParseDuration(raw.Window)
		if err != nil {
			return fmt.Errorf("scoring.window: %w", err)
		}
		s.Window = d
	}
	return nil
}

// Queue bounds the per-vehicle inbound sample queues.
type Queue struct {
	Depth int `yaml:"depth"`
}

// Load reads path if it exists, applies environment overrides, and fills
// defaults. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			log.Printf("config: %s not found, using defaults", path)
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Server.RedisURL = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Notify.URL = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_SECRET"); v != "" {
		c.Notify.Secret = v
	}
}

func (c *Config) fillDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Rules) == 0 {
		c.Rules = alert.DefaultRules()
	}
	if len(c.Signals) == 0 {
		c.Signals = decode.DefaultSignalMap()
	}
	if c.Penalties == nil {
		p := score.DefaultPenalties()
		c.Penalties = &p
	}
	if c.Scoring.Window <= 0 {
		c.Scoring.Window = 24 * time.Hour
	}
	if c.Notify.MaxAttempts <= 0 {
		c.Notify.MaxAttempts = 8
	}
	if c.Notify.Interval <= 0 {
		c.Notify.Interval = 2 * time.Second
	}
	if c.Queue.Depth <= 0 {
		c.Queue.Depth = 64
	}
}

// ValidGeofences drops fences that cannot be evaluated, logging each one,
// so a single bad entry never takes the whole config down.
func (c *Config) ValidGeofences() []model.Geofence {
	out := make([]model.Geofence, 0, len(c.Geofences))
	for _, f := range c.Geofences {
		if err := validateFence(f); err != nil {
			log.Printf("config: disabling geofence %q: %v", f.ID, err)
			continue
		}
		out = append(out, f)
	}
	return out
}

func validateFence(f model.Geofence) error {
	if f.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch f.Shape {
	case model.ShapeCircle:
		if f.RadiusM <= 0 {
			return fmt.Errorf("circle radius must be positive")
		}
	case model.ShapePolygon:
		if len(f.Vertices) < 3 {
			return fmt.Errorf("polygon needs at least 3 vertices, got %d", len(f.Vertices))
		}
	default:
		return fmt.Errorf("unknown shape %q", f.Shape)
	}
	return nil
}
