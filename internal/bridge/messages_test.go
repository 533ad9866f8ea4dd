package bridge

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
)

func TestNewAckMessage(t *testing.T) {
	ack := NewAckMessage("cmd-001", "volume", "-20.5", AckAccepted)

	if ack.CommandID != "cmd-001" {
		t.Errorf("command id = %q, want %q", ack.CommandID, "cmd-001")
	}
	if ack.Field != "volume" || ack.Value != "-20.5" {
		t.Errorf("field/value = %s/%s, want volume/-20.5", ack.Field, ack.Value)
	}
	if ack.Status != AckAccepted {
		t.Errorf("status = %v, want %v", ack.Status, AckAccepted)
	}
	if ack.Error != nil {
		t.Errorf("error = %+v, want nil", ack.Error)
	}
	if ack.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestNewAckErrorDetails(t *testing.T) {
	ack := NewAckError("cmd-002", "preset", "9", ErrCodeInvalidPayload, "preset out of range")

	if ack.Status != AckFailed {
		t.Errorf("status = %v, want %v", ack.Status, AckFailed)
	}
	if ack.Error == nil {
		t.Fatal("expected error details")
	}
	if ack.Error.Code != ErrCodeInvalidPayload {
		t.Errorf("code = %q, want %q", ack.Error.Code, ErrCodeInvalidPayload)
	}
	if ack.Error.Message != "preset out of range" {
		t.Errorf("message = %q, want %q", ack.Error.Message, "preset out of range")
	}
}

func TestAckMessageJSONOmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(NewAckMessage("cmd-003", "mute", "on", AckAccepted))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("accepted ack should omit error field, got %s", data)
	}
}

func TestNewHealthMessageUptime(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	msg := NewHealthMessage("MiniDSP", "1.0.0", HealthHealthy, minidsp.StreamStats{}, start)

	if msg.UptimeSeconds < 89 || msg.UptimeSeconds > 92 {
		t.Errorf("uptime = %d, want about 90", msg.UptimeSeconds)
	}
	if msg.Stream != nil {
		t.Errorf("stream = %+v, want nil for empty stats", msg.Stream)
	}
}

func TestNewHealthMessageStreamSection(t *testing.T) {
	stats := minidsp.StreamStats{
		State:         "reconnecting",
		FramesRx:      10,
		FramesDropped: 2,
		ConnectsTotal: 4,
		ErrorsTotal:   3,
	}
	msg := NewHealthMessage("MiniDSP", "1.0.0", HealthDegraded, stats, time.Now())

	if msg.Stream == nil {
		t.Fatal("expected stream section")
	}
	if msg.Stream.State != "reconnecting" {
		t.Errorf("state = %q, want %q", msg.Stream.State, "reconnecting")
	}
	if msg.Stream.Errors != 3 {
		t.Errorf("errors = %d, want 3", msg.Stream.Errors)
	}
}

func TestNewHealthMessageDisabledStream(t *testing.T) {
	msg := NewHealthMessage("MiniDSP", "1.0.0", HealthHealthy,
		minidsp.StreamStats{State: "disabled"}, time.Now())

	if msg.Stream != nil {
		t.Errorf("stream = %+v, want nil when streaming is disabled", msg.Stream)
	}
}
