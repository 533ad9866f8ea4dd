package minidsp

import "errors"

// Domain errors for the MiniDSP bridge core.
var (
	// ErrInvalidEndpoint is returned when the device endpoint URL cannot
	// be parsed or rewritten for streaming.
	ErrInvalidEndpoint = errors.New("minidsp: invalid endpoint URL")

	// ErrRefreshFailed is returned when a full-state fetch fails. During
	// startup this is fatal; the caller decides whether to retry.
	ErrRefreshFailed = errors.New("minidsp: state refresh failed")

	// ErrCommandFailed is returned when a config command request fails.
	// The command did not apply.
	ErrCommandFailed = errors.New("minidsp: command request failed")

	// ErrInvalidCommand is returned when a command carries no fields.
	ErrInvalidCommand = errors.New("minidsp: command has no fields set")

	// ErrUnknownSource is returned when a source name is not one the
	// device accepts.
	ErrUnknownSource = errors.New("minidsp: unknown source")

	// ErrInvalidPreset is returned when a preset index is out of range.
	ErrInvalidPreset = errors.New("minidsp: invalid preset")

	// ErrInvalidGain is returned when an output gain request is out of
	// the device's range.
	ErrInvalidGain = errors.New("minidsp: invalid output gain")

	// ErrDecodeFailed is returned when a stream frame is not valid JSON.
	// The frame is dropped; the connection stays up.
	ErrDecodeFailed = errors.New("minidsp: malformed stream frame")

	// ErrNilHandler is returned when subscribing with a nil handler.
	ErrNilHandler = errors.New("minidsp: handler must not be nil")
)
