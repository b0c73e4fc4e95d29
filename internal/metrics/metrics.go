package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the tracker.
	Registry = prometheus.NewRegistry()

	// FramesDecoded counts decoded frames by protocol.
	FramesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frames_decoded_total", Help: "Frames decoded by protocol."},
		[]string{"protocol"},
	)
	// DecodeErrors counts dropped frames by protocol and error class.
	DecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frame_decode_errors_total", Help: "Frames dropped by protocol and error."},
		[]string{"protocol", "error"},
	)
	// AlertsFired counts alert events by kind and severity.
	AlertsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_fired_total", Help: "Alert events by kind and severity."},
		[]string{"kind", "severity"},
	)
	// QueueDrops counts samples dropped from full per-vehicle queues.
	QueueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vehicle_queue_drops_total", Help: "Oldest-sample drops from full vehicle queues."},
		[]string{"vehicle"},
	)
	// EvalDuration records per-sample evaluation latency in seconds.
	EvalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "sample_eval_duration_seconds", Help: "Per-sample evaluation latency.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1}},
	)
	// NotifyDeliveries counts alert webhook delivery outcomes.
	NotifyDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alert_notify_deliveries_total", Help: "Alert webhook deliveries by status."},
		[]string{"status"},
	)
	// NotifyLatency tracks alert webhook delivery latencies in milliseconds.
	NotifyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "alert_notify_latency_ms", Help: "Alert webhook delivery latency in ms.",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
	)
)

// RegisterDefault registers all collectors on the tracker registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(FramesDecoded)
		Registry.MustRegister(DecodeErrors)
		Registry.MustRegister(AlertsFired)
		Registry.MustRegister(QueueDrops)
		Registry.MustRegister(EvalDuration)
		Registry.MustRegister(NotifyDeliveries)
		Registry.MustRegister(NotifyLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
