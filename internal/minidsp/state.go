package minidsp

import (
	"math"
	"reflect"
	"sync"
)

// Snapshot keys shared by the wire protocol and the stored state.
const (
	keyMaster       = "master"
	keyMasterStatus = "master_status"
	keyOutputs      = "outputs"
	keyInputLevels  = "input_levels"
	keyOutputLevels = "output_levels"
	keyLevels       = "levels"
)

// State is a device snapshot: master controls, output channel settings
// and the latest level meter readings.
//
// Numeric decibel values are stored integer-rounded; raw float precision
// from the wire never reaches observers. The Store owns the live State;
// everything handed out is a deep copy.
type State map[string]any

// DeepCopy returns a copy isolated from the original. Nested maps and
// slices are recursively copied.
func (s State) DeepCopy() State {
	if s == nil {
		return nil
	}
	return State(deepCopyMap(s))
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case State:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// roundValue rounds numeric values to the nearest integer, halves away
// from zero. Non-numeric values pass through unchanged.
func roundValue(v any) any {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case float32:
		return int(math.Round(float64(n)))
	case int:
		return n
	case int64:
		return int(n)
	default:
		return v
	}
}

// roundSequence rounds the numeric elements of a sequence.
func roundSequence(seq []any) []any {
	out := make([]any, len(seq))
	for i, v := range seq {
		out[i] = roundValue(v)
	}
	return out
}

// roundMapValues rounds the numeric values of a flat mapping.
func roundMapValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = roundValue(v)
	}
	return out
}

// normalizeSnapshot rounds the numeric leaves of a full device snapshot:
// top-level scalars, elements of top-level sequences, and values one
// level inside nested mappings. Sequence elements that are themselves
// mappings (the outputs list) pass through untouched.
func normalizeSnapshot(full map[string]any) State {
	out := make(State, len(full))
	for k, v := range full {
		switch val := v.(type) {
		case map[string]any:
			inner := make(map[string]any, len(val))
			for ik, iv := range val {
				inner[ik] = roundValue(iv)
			}
			out[k] = inner
		case []any:
			out[k] = roundSequence(val)
		default:
			out[k] = roundValue(v)
		}
	}
	return out
}

// Store is the state merge engine. It owns the single authoritative
// snapshot; full refreshes replace it wholesale and stream updates merge
// into it selectively. Both entry points share one mutex so concurrent
// writers never interleave, and readers only ever see complete states.
type Store struct {
	mu    sync.Mutex
	state State
}

// NewStore creates an empty store. The state is nil until the first
// Replace.
func NewStore() *Store {
	return &Store{}
}

// Replace normalizes a full snapshot and installs it wholesale. A
// replace is always an observable update: it is the result of an
// explicitly requested refresh, so the caller notifies unconditionally.
func (st *Store) Replace(full map[string]any) {
	normalized := normalizeSnapshot(full)

	st.mu.Lock()
	st.state = normalized
	st.mu.Unlock()
}

// ApplyUpdate merges a canonical partial update into the snapshot and
// reports whether anything observable changed. Each field group is
// applied independently:
//
//   - input/output levels replace only on elementwise difference
//   - master fields merge key-by-key; unchanged merges don't count
//   - an outputs sequence replaces wholesale and always counts
//
// A repeated identical update is a no-op.
func (st *Store) ApplyUpdate(u Update) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state == nil {
		st.state = make(State)
	}

	changed := false
	if u.HasInputLevels && st.replaceIfDifferent(keyInputLevels, u.InputLevels) {
		changed = true
	}
	if u.HasOutputLevels && st.replaceIfDifferent(keyOutputLevels, u.OutputLevels) {
		changed = true
	}
	if u.HasMaster && st.mergeMaster(u.Master) {
		changed = true
	}
	if u.HasOutputs {
		st.state[keyOutputs] = u.Outputs
		changed = true
	}
	return changed
}

// Snapshot returns a deep copy of the current state, or nil before the
// first Replace.
func (st *Store) Snapshot() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.DeepCopy()
}

// replaceIfDifferent installs a level sequence only when it differs
// elementwise from the stored one.
func (st *Store) replaceIfDifferent(key string, levels []any) bool {
	if reflect.DeepEqual(st.state[key], levels) {
		return false
	}
	st.state[key] = levels
	return true
}

// mergeMaster folds the update's master fields into the existing master
// mapping, creating it if absent. Returns true if the merged result
// differs from the prior mapping.
func (st *Store) mergeMaster(fields map[string]any) bool {
	current, _ := st.state[keyMaster].(map[string]any)

	merged := make(map[string]any, len(current)+len(fields))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	if current != nil && reflect.DeepEqual(current, merged) {
		return false
	}
	st.state[keyMaster] = merged
	return true
}
