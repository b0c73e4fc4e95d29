// Package track runs the per-vehicle telemetry pipeline: raw frames in,
// decoded samples, diagnoses, and alert events out.
package track

import (
	"errors"
	"log"
	"sync"
	"time"

	"fleettrack/internal/alert"
	"fleettrack/internal/decode"
	"fleettrack/internal/dtc"
	"fleettrack/internal/geo"
	"fleettrack/internal/metrics"
	"fleettrack/internal/model"
	"fleettrack/internal/score"
)

// Protocol names the wire format of an ingested frame.
type Protocol string

const (
	ProtocolOBD  Protocol = "obd"
	ProtocolCAN  Protocol = "can"
	ProtocolNMEA Protocol = "nmea"
)

// RawFrame is one frame as received from a vehicle's gateway.
type RawFrame struct {
	VehicleID  string
	Protocol   Protocol
	Payload    []byte
	ReceivedAt time.Time
}

// Result is the outcome of processing one frame that carried monitored data.
type Result struct {
	Sample    model.TelemetrySample
	Diagnoses []model.Diagnosis
	Crossings []geo.Crossing
	Events    []model.AlertEvent
}

// Sink receives pipeline results. Calls arrive in per-vehicle order but may
// arrive concurrently across vehicles.
type Sink interface {
	HandleResult(res Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Result)

func (f SinkFunc) HandleResult(res Result) { f(res) }

// ErrClosed is returned by Ingest after Close has been called.
var ErrClosed = errors.New("tracker closed")

// Options configures a Tracker. Zero values pick defaults.
type Options struct {
	Rules      []alert.Rule
	Geofences  []model.Geofence
	Signals    decode.SignalMap
	Penalties  score.Penalties
	Window     time.Duration
	QueueDepth int
	// DriverFor maps a vehicle to the driver charged for its behavior
	// events. Defaults to the vehicle id itself.
	DriverFor func(vehicleID string) string
}

// Tracker owns one worker goroutine per vehicle. Each worker processes its
// vehicle's frames strictly in arrival order; the inbound queue is bounded
// and drops the oldest frame when full.
type Tracker struct {
	analyzer *dtc.Analyzer
	engine   *alert.Engine
	fencer   *geo.Evaluator
	scorer   *score.Scorer
	fences   []model.Geofence
	signals  decode.SignalMap
	driver   func(string) string
	sink     Sink
	depth    int

	mu      sync.RWMutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

// New builds a tracker delivering results to sink.
func New(opts Options, sink Sink) *Tracker {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Signals == nil {
		opts.Signals = decode.DefaultSignalMap()
	}
	if opts.Penalties == (score.Penalties{}) {
		opts.Penalties = score.DefaultPenalties()
	}
	if opts.DriverFor == nil {
		opts.DriverFor = func(id string) string { return id }
	}
	if sink == nil {
		sink = SinkFunc(func(Result) {})
	}
	return &Tracker{
		analyzer: dtc.NewAnalyzer(nil),
		engine:   alert.NewEngine(opts.Rules),
		fencer:   geo.NewEvaluator(),
		scorer:   score.NewScorer(opts.Penalties, opts.Window),
		fences:   opts.Geofences,
		signals:  opts.Signals,
		driver:   opts.DriverFor,
		sink:     sink,
		depth:    opts.QueueDepth,
		workers:  map[string]*worker{},
	}
}

// Scorer exposes the behavior scorer for read endpoints.
func (t *Tracker) Scorer() *score.Scorer { return t.scorer }

// Analyzer exposes the trouble-code analyzer for read endpoints.
func (t *Tracker) Analyzer() *dtc.Analyzer { return t.analyzer }

// Ingest queues one frame for the vehicle's worker, spawning the worker on
// first sight of the vehicle. When the queue is full the oldest queued frame
// is dropped so fresh telemetry wins.
func (t *Tracker) Ingest(f RawFrame) error {
	if f.VehicleID == "" {
		return errors.New("frame missing vehicle id")
	}
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	w := t.workers[f.VehicleID]
	if w == nil {
		t.mu.RUnlock()
		t.spawn(f.VehicleID)
		return t.Ingest(f)
	}
	// The read lock stays held across the enqueue so Close, which takes
	// the write lock before shutting worker channels, cannot close this
	// channel mid-send.
	defer t.mu.RUnlock()
	for {
		select {
		case w.frames <- f:
			return nil
		default:
		}
		select {
		case <-w.frames:
			metrics.QueueDrops.WithLabelValues(f.VehicleID).Inc()
			log.Printf("track: vehicle %s queue full, dropped oldest frame", f.VehicleID)
		default:
		}
	}
}

func (t *Tracker) spawn(vehicleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.workers[vehicleID] != nil {
		return
	}
	w := &worker{
		frames: make(chan RawFrame, t.depth),
		obd:    decode.NewOBDDecoder(),
		can:    decode.NewCANDecoder(t.signals),
		nmea:   decode.NewNMEADecoder(),
	}
	t.workers[vehicleID] = w
	t.wg.Add(1)
	go t.run(vehicleID, w)
}

// Close stops accepting frames, drains every queued frame, and waits for all
// workers to finish.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for _, w := range t.workers {
		close(w.frames)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

type worker struct {
	frames chan RawFrame

	obd  *decode.OBDDecoder
	can  *decode.CANDecoder
	nmea *decode.NMEADecoder

	// state carries the last known value of every signal so each frame,
	// however partial, evaluates against a full picture of the vehicle.
	state model.TelemetrySample
}

func (t *Tracker) run(vehicleID string, w *worker) {
	defer t.wg.Done()
	w.state.VehicleID = vehicleID
	for f := range w.frames {
		t.process(w, f)
	}
}

func (t *Tracker) process(w *worker, f RawFrame) {
	start := time.Now()
	var (
		frag decode.Fragment
		err  error
	)
	switch f.Protocol {
	case ProtocolOBD:
		frag, err = w.obd.Decode(f.Payload)
	case ProtocolCAN:
		frag, err = w.can.Decode(f.Payload)
	case ProtocolNMEA:
		frag, err = w.nmea.Decode(f.Payload)
	default:
		err = decode.ErrMalformedFrame
	}
	if err != nil {
		log.Printf("track: vehicle %s: %s frame dropped: %v", f.VehicleID, f.Protocol, err)
		metrics.DecodeErrors.WithLabelValues(string(f.Protocol), errClass(err)).Inc()
		return
	}
	metrics.FramesDecoded.WithLabelValues(string(f.Protocol)).Inc()
	if frag.Empty() {
		return
	}

	merge(&w.state, frag)
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now().UTC()
	}
	w.state.Timestamp = f.ReceivedAt

	sample := w.state
	diags := t.analyzer.Analyze(sample.DTCCodes)

	var crossings []geo.Crossing
	if sample.Position.Valid {
		p := model.GeoPoint{Lat: sample.Position.Lat, Lng: sample.Position.Lng}
		crossings = t.fencer.EvaluateAll(sample.VehicleID, p, t.fences)
	}

	events := t.engine.Evaluate(&sample, diags, crossings)
	driverID := t.driver(sample.VehicleID)
	for _, ev := range events {
		metrics.AlertsFired.WithLabelValues(string(ev.Kind), string(ev.Severity)).Inc()
		t.scorer.Record(driverID, ev)
	}

	t.sink.HandleResult(Result{Sample: sample, Diagnoses: diags, Crossings: crossings, Events: events})
	metrics.EvalDuration.Observe(time.Since(start).Seconds())
}

// merge folds a fragment into the running vehicle state. Fields the frame
// did not carry keep their last known value; DTC lists replace wholesale
// because a stored-codes response reports the full current set.
func merge(s *model.TelemetrySample, frag decode.Fragment) {
	if frag.Position != nil {
		s.Position = *frag.Position
	}
	e := frag.Engine
	if e.RPM != nil {
		s.Engine.RPM = e.RPM
	}
	if e.SpeedKmh != nil {
		s.Engine.SpeedKmh = e.SpeedKmh
	}
	if e.CoolantTempC != nil {
		s.Engine.CoolantTempC = e.CoolantTempC
	}
	if e.OilTempC != nil {
		s.Engine.OilTempC = e.OilTempC
	}
	if e.ThrottlePct != nil {
		s.Engine.ThrottlePct = e.ThrottlePct
	}
	if e.BatteryVoltage != nil {
		s.Engine.BatteryVoltage = e.BatteryVoltage
	}
	if e.FuelPct != nil {
		s.Engine.FuelPct = e.FuelPct
	}
	if frag.DTCCodes != nil {
		s.DTCCodes = frag.DTCCodes
	}
}

func errClass(err error) string {
	switch {
	case errors.Is(err, decode.ErrUnknownPID):
		return "unknown_pid"
	case errors.Is(err, decode.ErrIncompleteFrame):
		return "incomplete"
	case errors.Is(err, decode.ErrChecksumFailed):
		return "checksum"
	default:
		return "malformed"
	}
}
