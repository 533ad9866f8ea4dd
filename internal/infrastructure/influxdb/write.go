package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLevel writes a single channel level meter reading.
//
// This is the primary method for recording level telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - device: Device identifier (e.g., "living-room-dsp")
//   - direction: Meter bank, "input" or "output"
//   - channel: Zero-based channel index
//   - levelDB: Level reading in dB
//
// Example:
//
//	client.WriteLevel("living-room-dsp", "input", 0, -12.0)
//	client.WriteLevel("living-room-dsp", "output", 1, -6.0)
func (c *Client) WriteLevel(device string, direction string, channel int, levelDB float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"levels",
		map[string]string{
			"device":    device,
			"direction": direction,
			"channel":   strconv.Itoa(channel),
		},
		map[string]interface{}{
			"value": levelDB,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMasterMetric writes a master status field measurement.
//
// Used for tracking volume, mute, preset and Dirac over time. Boolean
// fields are recorded as 0/1 by the caller.
//
// Parameters:
//   - device: Device identifier
//   - field: Master field name (e.g., "volume", "mute", "preset", "dirac")
//   - value: The numeric value to record
func (c *Client) WriteMasterMetric(device string, field string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"master_status",
		map[string]string{
			"device": device,
			"field":  field,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOutputGain writes a per-output gain setting.
//
// Parameters:
//   - device: Device identifier
//   - channel: Zero-based output channel index
//   - gainDB: Configured gain in dB
func (c *Client) WriteOutputGain(device string, channel int, gainDB float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"output_gain",
		map[string]string{
			"device":  device,
			"channel": strconv.Itoa(channel),
		},
		map[string]interface{}{
			"gain_db": gainDB,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("stream_stats",
//	    map[string]string{"device": "living-room-dsp"},
//	    map[string]interface{}{"frames_rx": 1042, "reconnects": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
