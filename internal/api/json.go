package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// problemType derives a stable type URI from the title, e.g.
// "Method Not Allowed" -> "/problems/method-not-allowed".
func problemType(title string) string {
	if title == "" {
		return "about:blank"
	}
	return "/problems/" + strings.ReplaceAll(strings.ToLower(title), " ", "-")
}
