package minidsp

import (
	"encoding/json"
	"fmt"
)

// Event is a decoded stream frame. The device emits several schema
// variants (flat level keys, levels nested under "levels", "master"
// versus "master_status"); NormalizeEvent maps them all onto one Update
// so the merge logic stays shape-agnostic.
type Event map[string]any

// DeepCopy returns a copy isolated from the original.
func (e Event) DeepCopy() Event {
	if e == nil {
		return nil
	}
	return Event(deepCopyMap(e))
}

// ParseEvent decodes a raw JSON frame into an Event.
func ParseEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return evt, nil
}

// Update is the canonical partial-update form. Presence flags
// distinguish an absent field from an empty one; values are already
// rounded where the merge rules call for it.
type Update struct {
	InputLevels    []any
	HasInputLevels bool

	OutputLevels    []any
	HasOutputLevels bool

	Master    map[string]any
	HasMaster bool

	Outputs    []any
	HasOutputs bool
}

// IsZero reports whether the update carries no recognized fields.
func (u Update) IsZero() bool {
	return !u.HasInputLevels && !u.HasOutputLevels && !u.HasMaster && !u.HasOutputs
}

// NormalizeEvent maps a decoded frame onto the canonical Update form.
//
// Level sequences are taken from the top level and, when present, from a
// nested "levels" mapping (the nested variant wins if both appear); each
// element is rounded. Master fields come from "master_status" or, failing
// that, "master", with numeric values rounded. An "outputs" sequence
// passes through untouched. Unrecognized keys are ignored.
func NormalizeEvent(evt Event) Update {
	var u Update

	takeLevels := func(src map[string]any) {
		if raw, ok := src[keyInputLevels].([]any); ok {
			u.InputLevels = roundSequence(raw)
			u.HasInputLevels = true
		}
		if raw, ok := src[keyOutputLevels].([]any); ok {
			u.OutputLevels = roundSequence(raw)
			u.HasOutputLevels = true
		}
	}

	takeLevels(evt)
	if nested, ok := evt[keyLevels].(map[string]any); ok {
		takeLevels(nested)
	}

	if ms, ok := evt[keyMasterStatus].(map[string]any); ok {
		u.Master = roundMapValues(ms)
		u.HasMaster = true
	} else if m, ok := evt[keyMaster].(map[string]any); ok {
		u.Master = roundMapValues(m)
		u.HasMaster = true
	}

	if outs, ok := evt[keyOutputs].([]any); ok {
		u.Outputs = outs
		u.HasOutputs = true
	}

	return u
}
