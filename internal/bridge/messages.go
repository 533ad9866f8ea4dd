package bridge

import (
	"time"

	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
)

// MQTT payload types for the acknowledgement and health topics. State
// topics carry bare scalars or plain JSON snapshots and need no wrapper.

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was parsed and sent to the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeUnknownCommand = "UNKNOWN_COMMAND"
	ErrCodeDeviceError    = "DEVICE_ERROR"
	ErrCodeBridgeError    = "BRIDGE_ERROR"
)

// AckMessage is published for each command received on a set topic.
// Topic: {prefix}/{device}/ack
type AckMessage struct {
	// CommandID correlates the acknowledgement with log lines for the
	// same command. Generated by the bridge on receipt.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Field is the command field from the set topic.
	Field string `json:"field"`

	// Value is the raw payload as received.
	Value string `json:"value"`

	// Status indicates the acknowledgement status.
	Status AckStatus `json:"status"`

	// Error contains details when Status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(id, field, value string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: id,
		Timestamp: time.Now().UTC(),
		Field:     field,
		Value:     value,
		Status:    status,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(id, field, value, code, message string) AckMessage {
	return AckMessage{
		CommandID: id,
		Timestamp: time.Now().UTC(),
		Field:     field,
		Value:     value,
		Status:    AckFailed,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: {prefix}/{device}/health, QoS 1, retained.
type HealthMessage struct {
	// Device is the device display name.
	Device string `json:"device"`

	// Timestamp is when the status was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Status is the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the daemon version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Stream describes the device stream connection. Omitted when the
	// coordinator runs on polling alone.
	Stream *StreamHealth `json:"stream,omitempty"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// StreamHealth describes the device stream connection.
type StreamHealth struct {
	// State is the connection state name.
	State string `json:"state"`

	// FramesReceived is the total decoded frames.
	FramesReceived uint64 `json:"frames_received"`

	// FramesDropped is the total malformed frames skipped.
	FramesDropped uint64 `json:"frames_dropped"`

	// Connects is the total successful connections.
	Connects uint64 `json:"connects"`

	// Errors is the total stream errors.
	Errors uint64 `json:"errors"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(device, version string, status HealthStatus, stats minidsp.StreamStats, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Device:        device,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}

	if stats.State != "" && stats.State != "disabled" {
		msg.Stream = &StreamHealth{
			State:          stats.State,
			FramesReceived: stats.FramesRx,
			FramesDropped:  stats.FramesDropped,
			Connects:       stats.ConnectsTotal,
			Errors:         stats.ErrorsTotal,
		}
	}

	return msg
}
