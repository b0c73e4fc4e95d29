package api

import (
	"net/http"
	"os"
	"time"

	"fleettrack/internal/buildinfo"
)

// DebugJSON reports build and effective-config facts for operators. Secrets
// stay out; only presence booleans are exposed.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                     os.Getenv("PORT"),
			"RATE_RPS":                 os.Getenv("RATE_RPS"),
			"RATE_BURST":               os.Getenv("RATE_BURST"),
			"HAS_DATABASE_URL":         os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":            os.Getenv("REDIS_URL") != "",
			"HAS_ALERT_WEBHOOK_URL":    os.Getenv("ALERT_WEBHOOK_URL") != "",
			"HAS_ALERT_WEBHOOK_SECRET": os.Getenv("ALERT_WEBHOOK_SECRET") != "",
		},
	})
}
