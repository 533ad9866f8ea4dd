// Package influxdb provides InfluxDB connectivity for audio telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched level writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Input and output level meter readings
//   - Master status history (volume, mute, preset, Dirac)
//   - Per-output gain settings
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "home",
//	    Bucket:  "audio",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write level readings
//	client.WriteLevel("living-room-dsp", "input", 0, -12.0)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback wrapped in ErrWriteFailed. Connection and health
// check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). Level meters tick roughly once a second per channel,
// so batching keeps network overhead negligible.
package influxdb
