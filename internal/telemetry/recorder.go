package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
)

// Logger matches the logging interface without importing a concrete
// implementation.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Writer is the subset of the InfluxDB client the recorder needs.
// Satisfied by *influxdb.Client; mocked in tests.
type Writer interface {
	WriteLevel(device string, direction string, channel int, levelDB float64)
	WriteMasterMetric(device string, field string, value float64)
	WriteOutputGain(device string, channel int, gainDB float64)
	IsConnected() bool
}

// Recorder turns device state snapshots into time-series points.
//
// It is registered as a coordinator listener; every snapshot it receives
// is decomposed into level, master status and output gain points. Writes
// are fire-and-forget: the underlying client batches them and reports
// failures through its own error callback.
type Recorder struct {
	writer Writer
	device string

	// Metrics
	snapshots atomic.Uint64
	points    atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// RecorderOptions contains the dependencies for creating a Recorder.
type RecorderOptions struct {
	// Device is the tag value identifying the device in every point.
	// Defaults to "minidsp".
	Device string

	// Writer receives the points. Required.
	Writer Writer

	// Logger for telemetry events. Optional.
	Logger Logger
}

// NewRecorder creates a telemetry recorder.
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("writer is required")
	}

	device := opts.Device
	if device == "" {
		device = "minidsp"
	}

	return &Recorder{
		writer: opts.Writer,
		device: device,
		logger: opts.Logger,
	}, nil
}

// HandleState records one snapshot. It is the minidsp.Listener passed to
// Coordinator.Subscribe.
//
// Level readings become one point per channel, numeric and boolean master
// fields one point per field (booleans as 0/1, strings skipped), and each
// output entry one gain point. Snapshots arriving while the writer is
// disconnected are dropped.
func (r *Recorder) HandleState(st minidsp.State) {
	if st == nil || !r.writer.IsConnected() {
		return
	}
	r.snapshots.Add(1)

	var points uint64
	points += r.recordLevels("input", st["input_levels"])
	points += r.recordLevels("output", st["output_levels"])
	points += r.recordMaster(st["master"])
	points += r.recordOutputs(st["outputs"])

	r.points.Add(points)
	r.logDebug("snapshot recorded", "device", r.device, "points", points)
}

// recordLevels writes one point per channel of a level meter bank.
func (r *Recorder) recordLevels(direction string, raw any) uint64 {
	seq, ok := raw.([]any)
	if !ok {
		return 0
	}

	var n uint64
	for channel, lv := range seq {
		if v, ok := numericValue(lv); ok {
			r.writer.WriteLevel(r.device, direction, channel, v)
			n++
		}
	}
	return n
}

// recordMaster writes the numeric and boolean master fields. String
// fields (source) have no numeric representation and are skipped.
func (r *Recorder) recordMaster(raw any) uint64 {
	master, ok := raw.(map[string]any)
	if !ok {
		return 0
	}

	var n uint64
	for field, fv := range master {
		if v, ok := numericValue(fv); ok {
			r.writer.WriteMasterMetric(r.device, field, v)
			n++
		}
	}
	return n
}

// recordOutputs writes one gain point per output entry. The entry's own
// index tag wins over its position when present.
func (r *Recorder) recordOutputs(raw any) uint64 {
	seq, ok := raw.([]any)
	if !ok {
		return 0
	}

	var n uint64
	for position, entry := range seq {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		gain, ok := numericValue(m["gain"])
		if !ok {
			continue
		}
		channel := position
		if idx, ok := numericValue(m["index"]); ok {
			channel = int(idx)
		}
		r.writer.WriteOutputGain(r.device, channel, gain)
		n++
	}
	return n
}

// numericValue converts ints, floats and bools (0/1) to float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// RecorderMetrics contains observability counters for the recorder.
type RecorderMetrics struct {
	Connected bool   `json:"connected"`
	Snapshots uint64 `json:"snapshots"`
	Points    uint64 `json:"points"`
}

// GetMetrics returns current recorder metrics.
func (r *Recorder) GetMetrics() RecorderMetrics {
	return RecorderMetrics{
		Connected: r.writer.IsConnected(),
		Snapshots: r.snapshots.Load(),
		Points:    r.points.Load(),
	}
}

// SetLogger sets the logger for telemetry events.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	defer r.loggerMu.Unlock()
	r.logger = logger
}

// logDebug logs a debug message if a logger is configured.
func (r *Recorder) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
