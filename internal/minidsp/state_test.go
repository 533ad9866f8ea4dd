package minidsp

import (
	"reflect"
	"testing"
)

func TestRoundValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "half rounds up", in: 7.5, want: 8},
		{name: "below half rounds down", in: 7.49, want: 7},
		{name: "negative volume", in: -20.3, want: -20},
		{name: "negative half away from zero", in: -3.5, want: -4},
		{name: "negative level", in: -5.9, want: -6},
		{name: "int passes through", in: 42, want: 42},
		{name: "int64 becomes int", in: int64(5), want: 5},
		{name: "float32", in: float32(2.5), want: 3},
		{name: "bool passes through", in: true, want: true},
		{name: "string passes through", in: "Toslink", want: "Toslink"},
		{name: "nil passes through", in: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundValue(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("roundValue(%v) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestRoundValueProducesInt(t *testing.T) {
	got := roundValue(-20.3)
	if _, ok := got.(int); !ok {
		t.Fatalf("roundValue(-20.3) = %T, want int", got)
	}
}

// fullStatus mimics a decoded GET response: floats everywhere numbers
// appear, outputs as a list of mappings.
func fullStatus() map[string]any {
	return map[string]any{
		"master": map[string]any{
			"volume": -20.3,
			"mute":   false,
			"source": "Toslink",
			"preset": float64(1),
		},
		"input_levels":  []any{-10.2, -5.9},
		"output_levels": []any{-3.4, -7.5},
		"outputs": []any{
			map[string]any{"index": float64(0), "gain": -1.5},
			map[string]any{"index": float64(1), "gain": 0.0},
		},
	}
}

func TestStoreReplaceNormalizes(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	snap := store.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot() returned nil after Replace")
	}

	master, ok := snap["master"].(map[string]any)
	if !ok {
		t.Fatalf("master = %T, want map", snap["master"])
	}
	if master["volume"] != -20 {
		t.Errorf("master volume = %v (%T), want -20 (int)", master["volume"], master["volume"])
	}
	if master["mute"] != false {
		t.Errorf("master mute = %v, want false", master["mute"])
	}
	if master["source"] != "Toslink" {
		t.Errorf("master source = %v, want Toslink", master["source"])
	}
	if master["preset"] != 1 {
		t.Errorf("master preset = %v (%T), want 1 (int)", master["preset"], master["preset"])
	}

	wantInput := []any{-10, -6}
	if !reflect.DeepEqual(snap["input_levels"], wantInput) {
		t.Errorf("input_levels = %v, want %v", snap["input_levels"], wantInput)
	}
	wantOutput := []any{-3, -8}
	if !reflect.DeepEqual(snap["output_levels"], wantOutput) {
		t.Errorf("output_levels = %v, want %v", snap["output_levels"], wantOutput)
	}
}

func TestStoreReplaceKeepsOutputGainPrecision(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	snap := store.Snapshot()
	outputs, ok := snap["outputs"].([]any)
	if !ok || len(outputs) != 2 {
		t.Fatalf("outputs = %v, want 2-element list", snap["outputs"])
	}

	first, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatalf("outputs[0] = %T, want map", outputs[0])
	}
	if first["gain"] != -1.5 {
		t.Errorf("outputs[0] gain = %v (%T), want -1.5 (float64)", first["gain"], first["gain"])
	}
}

func TestStoreSnapshotBeforeReplace(t *testing.T) {
	store := NewStore()
	if snap := store.Snapshot(); snap != nil {
		t.Errorf("Snapshot() = %v, want nil before first Replace", snap)
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	snap := store.Snapshot()
	snap["master"].(map[string]any)["volume"] = -100
	snap["input_levels"].([]any)[0] = -100
	snap["extra"] = "mutated"

	fresh := store.Snapshot()
	if fresh["master"].(map[string]any)["volume"] != -20 {
		t.Error("snapshot mutation leaked into stored master")
	}
	if fresh["input_levels"].([]any)[0] != -10 {
		t.Error("snapshot mutation leaked into stored levels")
	}
	if _, ok := fresh["extra"]; ok {
		t.Error("snapshot mutation added a key to the stored state")
	}
}

func TestApplyUpdateLevelsIdempotent(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	update := NormalizeEvent(Event{"input_levels": []any{-12.4, -6.1}})

	if !store.ApplyUpdate(update) {
		t.Fatal("first ApplyUpdate() = false, want true")
	}
	if store.ApplyUpdate(update) {
		t.Error("repeated ApplyUpdate() = true, want false")
	}

	snap := store.Snapshot()
	want := []any{-12, -6}
	if !reflect.DeepEqual(snap["input_levels"], want) {
		t.Errorf("input_levels = %v, want %v", snap["input_levels"], want)
	}
}

func TestApplyUpdateLevelsMatchRefresh(t *testing.T) {
	// A stream frame carrying the same readings the refresh already
	// stored must not count as a change.
	store := NewStore()
	store.Replace(fullStatus())

	update := NormalizeEvent(Event{"input_levels": []any{-10.2, -5.9}})
	if store.ApplyUpdate(update) {
		t.Error("ApplyUpdate() = true for readings that round to the stored ones")
	}
}

func TestApplyUpdateMergeIsolation(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	update := NormalizeEvent(Event{"input_levels": []any{-1.0, -2.0}})
	if !store.ApplyUpdate(update) {
		t.Fatal("ApplyUpdate() = false, want true")
	}

	snap := store.Snapshot()
	if !reflect.DeepEqual(snap["output_levels"], []any{-3, -8}) {
		t.Errorf("output_levels disturbed by input update: %v", snap["output_levels"])
	}
	if snap["master"].(map[string]any)["volume"] != -20 {
		t.Error("master disturbed by input update")
	}
	if len(snap["outputs"].([]any)) != 2 {
		t.Error("outputs disturbed by input update")
	}
}

func TestApplyUpdateMasterMerge(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	update := NormalizeEvent(Event{"master_status": map[string]any{"mute": true}})
	if !store.ApplyUpdate(update) {
		t.Fatal("ApplyUpdate() = false, want true")
	}

	master := store.Snapshot()["master"].(map[string]any)
	if master["mute"] != true {
		t.Errorf("master mute = %v, want true", master["mute"])
	}
	if master["volume"] != -20 {
		t.Errorf("master volume = %v, want -20 preserved through merge", master["volume"])
	}
	if master["source"] != "Toslink" {
		t.Errorf("master source = %v, want Toslink preserved through merge", master["source"])
	}

	// Re-applying the identical field is a no-op.
	if store.ApplyUpdate(update) {
		t.Error("repeated master merge = true, want false")
	}
}

func TestApplyUpdateMasterCreatesMapping(t *testing.T) {
	store := NewStore()
	store.Replace(map[string]any{"input_levels": []any{-10.0}})

	update := NormalizeEvent(Event{"master_status": map[string]any{"volume": -15.2}})
	if !store.ApplyUpdate(update) {
		t.Fatal("ApplyUpdate() = false, want true when master is absent")
	}

	master, ok := store.Snapshot()["master"].(map[string]any)
	if !ok {
		t.Fatal("master mapping not created")
	}
	if master["volume"] != -15 {
		t.Errorf("master volume = %v, want -15", master["volume"])
	}
}

func TestApplyUpdateOutputsAlwaysChange(t *testing.T) {
	store := NewStore()
	store.Replace(fullStatus())

	evt := Event{"outputs": []any{
		map[string]any{"index": float64(0), "gain": -1.5},
		map[string]any{"index": float64(1), "gain": 0.0},
	}}

	if !store.ApplyUpdate(NormalizeEvent(evt)) {
		t.Error("first outputs update = false, want true")
	}
	if !store.ApplyUpdate(NormalizeEvent(evt)) {
		t.Error("identical outputs update = false, want true (outputs replace wholesale)")
	}
}

func TestApplyUpdateBeforeReplace(t *testing.T) {
	store := NewStore()

	update := NormalizeEvent(Event{"input_levels": []any{-4.2}})
	if !store.ApplyUpdate(update) {
		t.Fatal("ApplyUpdate() on empty store = false, want true")
	}

	snap := store.Snapshot()
	if !reflect.DeepEqual(snap["input_levels"], []any{-4}) {
		t.Errorf("input_levels = %v, want [-4]", snap["input_levels"])
	}
}

func TestStateDeepCopy(t *testing.T) {
	original := State{
		"master": map[string]any{"volume": -20},
		"levels": []any{1, 2, []any{3}},
	}

	cpy := original.DeepCopy()
	cpy["master"].(map[string]any)["volume"] = 0
	cpy["levels"].([]any)[0] = 99
	cpy["levels"].([]any)[2].([]any)[0] = 99

	if original["master"].(map[string]any)["volume"] != -20 {
		t.Error("nested map mutation leaked into original")
	}
	if original["levels"].([]any)[0] != 1 {
		t.Error("slice mutation leaked into original")
	}
	if original["levels"].([]any)[2].([]any)[0] != 3 {
		t.Error("nested slice mutation leaked into original")
	}
}

func TestStateDeepCopyNil(t *testing.T) {
	var s State
	if got := s.DeepCopy(); got != nil {
		t.Errorf("nil DeepCopy() = %v, want nil", got)
	}
}
