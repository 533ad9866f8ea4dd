// Package telemetry records device state snapshots to time-series storage.
//
// # Architecture
//
//	┌─────────────┐  snapshots   ┌──────────┐  batched points  ┌──────────┐
//	│ Coordinator │ ───────────▶ │ Recorder │ ───────────────▶ │ InfluxDB │
//	└─────────────┘              └──────────┘                  └──────────┘
//
// The Recorder subscribes to a device coordinator and decomposes each
// snapshot into points:
//
//   - "levels": one point per input/output channel reading
//   - "master_status": one point per numeric or boolean master field
//   - "output_gain": one point per output channel setting
//
// # Thread Safety
//
// HandleState is invoked from the coordinator's notification path; all
// counters are atomic and the writer is safe for concurrent use.
package telemetry
