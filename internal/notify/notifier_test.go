package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleettrack/internal/model"
)

func TestProcessOnceSuccessAndSignature(t *testing.T) {
	var mu sync.Mutex
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n := New(srv.URL, "secret", 3, time.Second)
	n.HTTP = srv.Client()
	n.Publish([]model.AlertEvent{{
		ID: "a-1", VehicleID: "v-1", Kind: model.AlertSpeeding,
		Severity: model.AlertWarning, Value: 125, Threshold: 120,
	}})
	n.processOnce()

	mu.Lock()
	defer mu.Unlock()
	if gotType != "speeding" {
		t.Fatalf("event type header = %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatal("signature does not verify against body")
	}
	var ev model.AlertEvent
	if err := json.Unmarshal(gotBody, &ev); err != nil || ev.ID != "a-1" {
		t.Fatalf("body = %s (%v)", gotBody, err)
	}
	if n.Pending() != 0 {
		t.Fatalf("pending = %d after success", n.Pending())
	}
}

func TestProcessOnceRetriesThenDrops(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(500)
	}))
	defer srv.Close()

	n := New(srv.URL, "", 2, time.Second)
	n.HTTP = srv.Client()
	n.Publish([]model.AlertEvent{{ID: "a-2", Kind: model.AlertOverheat}})

	n.processOnce() // attempt 1 fails, backoff scheduled
	if n.Pending() != 1 {
		t.Fatalf("pending = %d, want retry queued", n.Pending())
	}
	// Force the retry due now.
	n.mu.Lock()
	n.queue[0].NextAttempt = time.Now().Add(-time.Second)
	n.mu.Unlock()

	n.processOnce() // attempt 2 fails, max reached, dropped
	if n.Pending() != 0 {
		t.Fatalf("pending = %d, want dropped after max attempts", n.Pending())
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("backoff = %v, %v", nextBackoff(0), nextBackoff(3))
	}
	if nextBackoff(50) != time.Hour {
		t.Fatalf("backoff cap = %v", nextBackoff(50))
	}
}

func TestPublishWithoutURLIsNoop(t *testing.T) {
	n := New("", "x", 3, time.Second)
	n.Publish([]model.AlertEvent{{ID: "a-3"}})
	if n.Pending() != 0 {
		t.Fatalf("pending = %d", n.Pending())
	}
}
