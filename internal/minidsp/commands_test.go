package minidsp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestVolumeCommandClamps(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "in range", in: -22.5, want: -22.5},
		{name: "above max", in: 3.0, want: 0.0},
		{name: "below min", in: -200.0, want: -127.0},
		{name: "at floor", in: -127.0, want: -127.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := VolumeCommand(tt.in)
			if cmd.MasterStatus == nil || cmd.MasterStatus.Volume == nil {
				t.Fatal("VolumeCommand() missing volume field")
			}
			if *cmd.MasterStatus.Volume != tt.want {
				t.Errorf("volume = %v, want %v", *cmd.MasterStatus.Volume, tt.want)
			}
		})
	}
}

func TestMuteCommand(t *testing.T) {
	cmd := MuteCommand(true)
	if cmd.MasterStatus == nil || cmd.MasterStatus.Mute == nil || !*cmd.MasterStatus.Mute {
		t.Error("MuteCommand(true) did not set mute")
	}
	if cmd.MasterStatus.Volume != nil {
		t.Error("MuteCommand() set an unrelated field")
	}
}

func TestSourceCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "exact casing", in: "Toslink", want: "Toslink"},
		{name: "lowercase", in: "toslink", want: "Toslink"},
		{name: "uppercase", in: "USB", want: "Usb"},
		{name: "padded", in: " analog ", want: "Analog"},
		{name: "unknown", in: "vinyl", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := SourceCommand(tt.in)

			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSource) {
					t.Errorf("error = %v, want ErrUnknownSource", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("SourceCommand() error: %v", err)
			}
			if *cmd.MasterStatus.Source != tt.want {
				t.Errorf("source = %q, want %q", *cmd.MasterStatus.Source, tt.want)
			}
		})
	}
}

func TestPresetCommand(t *testing.T) {
	for preset := 0; preset <= 3; preset++ {
		cmd, err := PresetCommand(preset)
		if err != nil {
			t.Errorf("PresetCommand(%d) error: %v", preset, err)
			continue
		}
		if *cmd.MasterStatus.Preset != preset {
			t.Errorf("preset = %d, want %d", *cmd.MasterStatus.Preset, preset)
		}
	}

	for _, preset := range []int{-1, 4, 99} {
		if _, err := PresetCommand(preset); !errors.Is(err, ErrInvalidPreset) {
			t.Errorf("PresetCommand(%d) error = %v, want ErrInvalidPreset", preset, err)
		}
	}
}

func TestOutputGainCommand(t *testing.T) {
	cmd, err := OutputGainCommand(1, -6.5)
	if err != nil {
		t.Fatalf("OutputGainCommand() error: %v", err)
	}
	if len(cmd.Outputs) != 1 {
		t.Fatalf("outputs length = %d, want 1", len(cmd.Outputs))
	}
	if cmd.Outputs[0].Index != 1 || cmd.Outputs[0].Gain != -6.5 {
		t.Errorf("output = %+v, want index 1 gain -6.5", cmd.Outputs[0])
	}

	if _, err := OutputGainCommand(-1, 0); !errors.Is(err, ErrInvalidGain) {
		t.Errorf("negative index error = %v, want ErrInvalidGain", err)
	}
	if _, err := OutputGainCommand(0, 12.1); !errors.Is(err, ErrInvalidGain) {
		t.Errorf("gain above max error = %v, want ErrInvalidGain", err)
	}
	if _, err := OutputGainCommand(0, -130); !errors.Is(err, ErrInvalidGain) {
		t.Errorf("gain below min error = %v, want ErrInvalidGain", err)
	}
}

func TestCommandIsZero(t *testing.T) {
	if !(Command{}).IsZero() {
		t.Error("empty command IsZero() = false")
	}
	if MuteCommand(false).IsZero() {
		t.Error("mute command IsZero() = true")
	}
	if (Command{Outputs: []OutputGain{{Index: 0, Gain: 0}}}).IsZero() {
		t.Error("outputs command IsZero() = true")
	}
}

func TestCommandJSONOmitsAbsentFields(t *testing.T) {
	data, err := json.Marshal(MuteCommand(true))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	ms, ok := payload["master_status"].(map[string]any)
	if !ok {
		t.Fatalf("master_status = %T, want map", payload["master_status"])
	}
	if len(ms) != 1 {
		t.Errorf("master_status carries %d fields %v, want just mute", len(ms), ms)
	}
	if _, ok := payload["outputs"]; ok {
		t.Error("outputs key present on a master-only command")
	}
}

func TestNormalizeSource(t *testing.T) {
	for _, name := range SourceNames() {
		got, err := NormalizeSource(name)
		if err != nil {
			t.Errorf("NormalizeSource(%q) error: %v", name, err)
			continue
		}
		if got != name {
			t.Errorf("NormalizeSource(%q) = %q, want unchanged", name, got)
		}
	}
}

func TestSourceNamesCopy(t *testing.T) {
	names := SourceNames()
	names[0] = "Phono"

	if SourceNames()[0] != "Analog" {
		t.Error("mutating the returned slice changed the source list")
	}
}
