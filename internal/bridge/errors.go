package bridge

import "errors"

// Command translation errors.
var (
	// ErrInvalidPayload is returned when a set-topic payload cannot be
	// parsed for its field.
	ErrInvalidPayload = errors.New("bridge: invalid command payload")

	// ErrUnknownCommand is returned when a set topic names a field the
	// bridge does not handle.
	ErrUnknownCommand = errors.New("bridge: unknown command field")
)
