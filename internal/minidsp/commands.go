package minidsp

import (
	"fmt"
	"strings"
)

// Device limits, in dB, enforced before a command is sent.
const (
	MinVolume = -127.0
	MaxVolume = 0.0

	MinGain = -127.0
	MaxGain = 12.0

	MinPreset = 0
	MaxPreset = 3
)

// sourceOrder lists the input sources in the casing the device API
// expects, in the order the device UI presents them.
var sourceOrder = []string{"Analog", "Toslink", "Spdif", "Usb", "Bluetooth"}

// sourcesByName maps lower-cased names to API casing.
var sourcesByName = func() map[string]string {
	m := make(map[string]string, len(sourceOrder))
	for _, s := range sourceOrder {
		m[strings.ToLower(s)] = s
	}
	return m
}()

// SourceNames returns the selectable input source names in API casing.
func SourceNames() []string {
	out := make([]string, len(sourceOrder))
	copy(out, sourceOrder)
	return out
}

// NormalizeSource maps a case-insensitive source name to the casing the
// device API expects.
func NormalizeSource(name string) (string, error) {
	if s, ok := sourcesByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// MasterStatus carries the master-control fields of a command. Nil
// fields are omitted from the wire payload so the device only applies
// what is present.
type MasterStatus struct {
	Volume *float64 `json:"volume,omitempty"`
	Mute   *bool    `json:"mute,omitempty"`
	Source *string  `json:"source,omitempty"`
	Preset *int     `json:"preset,omitempty"`
	Dirac  *bool    `json:"dirac,omitempty"`
}

// OutputGain sets one output channel's gain.
type OutputGain struct {
	Index int     `json:"index"`
	Gain  float64 `json:"gain"`
}

// Command is a partial device configuration for POST /devices/{i}/config.
// Only the populated fields are applied by the device.
type Command struct {
	MasterStatus *MasterStatus `json:"master_status,omitempty"`
	Outputs      []OutputGain  `json:"outputs,omitempty"`
}

// IsZero reports whether the command would apply nothing.
func (c Command) IsZero() bool {
	return c.MasterStatus == nil && len(c.Outputs) == 0
}

// VolumeCommand sets the master volume in dB, clamped to the device
// range of -127..0.
func VolumeCommand(db float64) Command {
	if db < MinVolume {
		db = MinVolume
	}
	if db > MaxVolume {
		db = MaxVolume
	}
	return Command{MasterStatus: &MasterStatus{Volume: &db}}
}

// MuteCommand sets master mute.
func MuteCommand(mute bool) Command {
	return Command{MasterStatus: &MasterStatus{Mute: &mute}}
}

// DiracCommand toggles Dirac Live room correction.
func DiracCommand(enabled bool) Command {
	return Command{MasterStatus: &MasterStatus{Dirac: &enabled}}
}

// SourceCommand selects the active input source by name, matched
// case-insensitively against the device's source list.
func SourceCommand(name string) (Command, error) {
	source, err := NormalizeSource(name)
	if err != nil {
		return Command{}, err
	}
	return Command{MasterStatus: &MasterStatus{Source: &source}}, nil
}

// PresetCommand selects a configuration preset slot (0-3).
func PresetCommand(preset int) (Command, error) {
	if preset < MinPreset || preset > MaxPreset {
		return Command{}, fmt.Errorf("%w: %d not in %d..%d", ErrInvalidPreset, preset, MinPreset, MaxPreset)
	}
	return Command{MasterStatus: &MasterStatus{Preset: &preset}}, nil
}

// OutputGainCommand sets one output channel's gain in dB within the
// device range of -127..+12.
func OutputGainCommand(index int, gain float64) (Command, error) {
	if index < 0 {
		return Command{}, fmt.Errorf("%w: negative output index %d", ErrInvalidGain, index)
	}
	if gain < MinGain || gain > MaxGain {
		return Command{}, fmt.Errorf("%w: %.1f not in %.0f..%.0f", ErrInvalidGain, gain, MinGain, MaxGain)
	}
	return Command{Outputs: []OutputGain{{Index: index, Gain: gain}}}, nil
}
