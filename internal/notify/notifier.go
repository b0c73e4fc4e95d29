// Package notify delivers fired alert events to an operator webhook with
// HMAC signing and exponential retry.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"fleettrack/internal/metrics"
	"fleettrack/internal/model"
)

type delivery struct {
	Payload     []byte
	Kind        model.AlertKind
	Attempts    int
	NextAttempt time.Time
}

// Notifier posts alert events to URL, one request per event. Failed
// deliveries are retried with exponential backoff until MaxAttempts, then
// dropped with a logged error.
type Notifier struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	Stop        chan struct{}

	mu    sync.Mutex
	queue []*delivery
}

func New(url, secret string, maxAttempts int, interval time.Duration) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Notifier{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Stop:        make(chan struct{}),
	}
}

// Publish enqueues events for delivery. Never blocks the caller; delivery
// happens on the worker goroutine.
func (n *Notifier) Publish(events []model.AlertEvent) {
	if n.URL == "" || len(events) == 0 {
		return
	}
	now := time.Now()
	n.mu.Lock()
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		n.queue = append(n.queue, &delivery{Payload: body, Kind: ev.Kind, NextAttempt: now})
	}
	n.mu.Unlock()
}

// Start runs the delivery loop until Stop is closed.
func (n *Notifier) Start() {
	go func() {
		ticker := time.NewTicker(n.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-n.Stop:
				return
			case <-ticker.C:
				n.processOnce()
			}
		}
	}()
}

func (n *Notifier) processOnce() {
	now := time.Now()
	n.mu.Lock()
	var due []*delivery
	for _, d := range n.queue {
		if !d.NextAttempt.After(now) {
			due = append(due, d)
		}
	}
	n.mu.Unlock()
	if len(due) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, d := range due {
		if n.attempt(ctx, d) {
			n.remove(d)
			metrics.NotifyDeliveries.WithLabelValues("delivered").Inc()
			continue
		}
		d.Attempts++
		if d.Attempts >= n.MaxAttempts {
			log.Printf("notify: dropping %s alert after %d attempts", d.Kind, d.Attempts)
			n.remove(d)
			metrics.NotifyDeliveries.WithLabelValues("dropped").Inc()
			continue
		}
		d.NextAttempt = time.Now().Add(nextBackoff(d.Attempts))
		metrics.NotifyDeliveries.WithLabelValues("retry").Inc()
	}
}

func (n *Notifier) attempt(ctx context.Context, d *delivery) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(d.Kind))
	if n.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(n.Secret, d.Payload))
	}
	start := time.Now()
	resp, err := n.HTTP.Do(req)
	metrics.NotifyLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil || resp == nil {
		return false
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (n *Notifier) remove(target *delivery) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, d := range n.queue {
		if d == target {
			n.queue = append(n.queue[:i], n.queue[i+1:]...)
			return
		}
	}
}

// Pending reports queued deliveries, for tests and shutdown draining.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
