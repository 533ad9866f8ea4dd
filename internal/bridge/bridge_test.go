package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	publishErr    error
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns the publishes made to one topic, in order.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockSubscription, len(m.subscriptions))
	copy(out, m.subscriptions)
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// MockCoordinator implements Coordinator for testing.
type MockCoordinator struct {
	mu          sync.Mutex
	state       minidsp.State
	ready       bool
	listeners   []minidsp.Listener
	commands    []minidsp.Command
	refreshes   int
	commandErr  error
	streamStats minidsp.StreamStats
}

func NewMockCoordinator() *MockCoordinator {
	return &MockCoordinator{
		ready:       true,
		streamStats: minidsp.StreamStats{State: "disabled"},
	}
}

func (m *MockCoordinator) Subscribe(l minidsp.Listener) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
	idx := len(m.listeners) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners[idx] = nil
	}, nil
}

func (m *MockCoordinator) Snapshot() minidsp.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeepCopy()
}

func (m *MockCoordinator) RequestRefresh(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return nil
}

func (m *MockCoordinator) IssueCommand(_ context.Context, cmd minidsp.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commandErr != nil {
		return m.commandErr
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *MockCoordinator) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *MockCoordinator) StreamStats() minidsp.StreamStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamStats
}

func (m *MockCoordinator) SetState(st minidsp.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
}

func (m *MockCoordinator) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *MockCoordinator) SetCommandError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandErr = err
}

func (m *MockCoordinator) SetStreamStats(stats minidsp.StreamStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamStats = stats
}

func (m *MockCoordinator) GetCommands() []minidsp.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]minidsp.Command, len(m.commands))
	copy(out, m.commands)
	return out
}

func (m *MockCoordinator) RefreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// SimulateChange delivers a snapshot to every registered listener, the
// way the coordinator does after a merge or refresh.
func (m *MockCoordinator) SimulateChange(st minidsp.State) {
	m.mu.Lock()
	listeners := make([]minidsp.Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(st.DeepCopy())
		}
	}
}

// testState returns a normalized snapshot like the coordinator hands out.
func testState() minidsp.State {
	return minidsp.State{
		"master": map[string]any{
			"volume": -20,
			"mute":   false,
			"source": "Toslink",
			"preset": 1,
			"dirac":  true,
		},
		"input_levels":  []any{-10, -6},
		"output_levels": []any{-3, -8},
		"outputs": []any{
			map[string]any{"index": 0, "gain": -1.5},
			map[string]any{"index": 1, "gain": 0.0},
		},
	}
}

func createTestBridge(t *testing.T, mc *MockMQTTClient, coord *MockCoordinator) *Bridge {
	t.Helper()
	b, err := NewBridge(BridgeOptions{
		DeviceName:  "Living Room DSP",
		TopicPrefix: "minidsp",
		QoS:         1,
		Version:     "1.0.0",
		MQTTClient:  mc,
		Coordinator: coord,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	return b
}

func TestNewBridgeMissingMQTT(t *testing.T) {
	_, err := NewBridge(BridgeOptions{
		Coordinator: NewMockCoordinator(),
	})
	if err == nil {
		t.Error("NewBridge() expected error for nil MQTT client")
	}
}

func TestNewBridgeMissingCoordinator(t *testing.T) {
	_, err := NewBridge(BridgeOptions{
		MQTTClient: NewMockMQTTClient(),
	})
	if err == nil {
		t.Error("NewBridge() expected error for nil coordinator")
	}
}

func TestNewBridgeDefaults(t *testing.T) {
	b, err := NewBridge(BridgeOptions{
		MQTTClient:  NewMockMQTTClient(),
		Coordinator: NewMockCoordinator(),
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}

	if got := b.Topics().Device(); got != "minidsp" {
		t.Errorf("default device slug = %q, want %q", got, "minidsp")
	}
	if got := b.Topics().Prefix(); got != "minidsp" {
		t.Errorf("default prefix = %q, want %q", got, "minidsp")
	}
	if b.health == nil {
		t.Error("NewBridge() did not create health reporter")
	}
}

func TestBridgeStartStop(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetState(testState())

	b := createTestBridge(t, mc, coord)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	subs := mc.GetSubscriptions()
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
	wantTopics := map[string]bool{
		"minidsp/living-room-dsp/set/+":   false,
		"minidsp/living-room-dsp/refresh": false,
	}
	for _, s := range subs {
		if _, ok := wantTopics[s.Topic]; !ok {
			t.Errorf("unexpected subscription topic %q", s.Topic)
			continue
		}
		wantTopics[s.Topic] = true
		if s.QoS != 1 {
			t.Errorf("subscription %q QoS = %d, want 1", s.Topic, s.QoS)
		}
	}
	for topic, seen := range wantTopics {
		if !seen {
			t.Errorf("missing subscription to %q", topic)
		}
	}

	// Retained topics are seeded from the ready coordinator's snapshot
	if got := mc.PublishedTo("minidsp/living-room-dsp/state"); len(got) != 1 {
		t.Errorf("expected 1 seeded state publish, got %d", len(got))
	}
	if got := mc.PublishedTo("minidsp/living-room-dsp/volume"); len(got) != 1 {
		t.Errorf("expected 1 seeded volume publish, got %d", len(got))
	} else if string(got[0].Payload) != "-20" {
		t.Errorf("seeded volume payload = %q, want %q", got[0].Payload, "-20")
	}

	// Health status is published during startup
	if got := mc.PublishedTo("minidsp/living-room-dsp/health"); len(got) < 2 {
		t.Errorf("expected starting and initial health publishes, got %d", len(got))
	}

	b.Stop()

	// Calling Stop again should be safe (sync.Once)
	b.Stop()
}

func TestBridgeStatePublish(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetReady(false)

	b := createTestBridge(t, mc, coord)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	mc.ClearPublished()
	coord.SimulateChange(testState())

	checks := []struct {
		topic    string
		payload  string
		retained bool
	}{
		{"minidsp/living-room-dsp/volume", "-20", true},
		{"minidsp/living-room-dsp/mute", "false", true},
		{"minidsp/living-room-dsp/source", "Toslink", true},
		{"minidsp/living-room-dsp/preset", "1", true},
		{"minidsp/living-room-dsp/dirac", "true", true},
		{"minidsp/living-room-dsp/outputs", `[{"gain":-1.5,"index":0},{"gain":0,"index":1}]`, true},
		{"minidsp/living-room-dsp/levels/input", "[-10,-6]", false},
		{"minidsp/living-room-dsp/levels/output", "[-3,-8]", false},
	}
	for _, c := range checks {
		got := mc.PublishedTo(c.topic)
		if len(got) != 1 {
			t.Errorf("topic %s: expected 1 publish, got %d", c.topic, len(got))
			continue
		}
		if string(got[0].Payload) != c.payload {
			t.Errorf("topic %s payload = %q, want %q", c.topic, got[0].Payload, c.payload)
		}
		if got[0].Retained != c.retained {
			t.Errorf("topic %s retained = %v, want %v", c.topic, got[0].Retained, c.retained)
		}
	}

	// Full snapshot goes out as one JSON document
	state := mc.PublishedTo("minidsp/living-room-dsp/state")
	if len(state) != 1 {
		t.Fatalf("expected 1 state publish, got %d", len(state))
	}
	if !state[0].Retained {
		t.Error("state publish should be retained")
	}
	var decoded map[string]any
	if err := json.Unmarshal(state[0].Payload, &decoded); err != nil {
		t.Fatalf("state payload is not JSON: %v", err)
	}
	if _, ok := decoded["master"]; !ok {
		t.Error("state payload missing master section")
	}
}

func TestBridgeStateChangeSuppression(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetReady(false)

	b := createTestBridge(t, mc, coord)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	mc.ClearPublished()
	coord.SimulateChange(testState())
	first := len(mc.GetPublished())
	if first == 0 {
		t.Fatal("expected publishes for the first snapshot")
	}

	// Identical snapshot publishes nothing
	mc.ClearPublished()
	coord.SimulateChange(testState())
	if got := mc.GetPublished(); len(got) != 0 {
		t.Errorf("identical snapshot published %d messages, want 0", len(got))
	}

	// A volume change republishes only the state document and the
	// volume topic
	mc.ClearPublished()
	st := testState()
	st["master"].(map[string]any)["volume"] = -25
	coord.SimulateChange(st)

	published := mc.GetPublished()
	if len(published) != 2 {
		for _, p := range published {
			t.Logf("published: %s = %s", p.Topic, p.Payload)
		}
		t.Fatalf("expected 2 publishes after volume change, got %d", len(published))
	}
	if got := mc.PublishedTo("minidsp/living-room-dsp/volume"); len(got) != 1 || string(got[0].Payload) != "-25" {
		t.Errorf("volume publish = %v, want one publish of -25", got)
	}
}

func TestBridgePublishErrorRetries(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetReady(false)

	b := createTestBridge(t, mc, coord)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	mc.ClearPublished()
	mc.SetPublishError(errors.New("broker gone"))
	coord.SimulateChange(testState())

	if got := mc.GetPublished(); len(got) != 0 {
		t.Fatalf("expected no publishes while broker down, got %d", len(got))
	}

	// Once the broker is back the same snapshot publishes in full
	mc.SetPublishError(nil)
	coord.SimulateChange(testState())
	if got := mc.PublishedTo("minidsp/living-room-dsp/volume"); len(got) != 1 {
		t.Errorf("expected volume republish after broker recovery, got %d", len(got))
	}
}

func TestBridgeVolumeCommand(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()

	b := createTestBridge(t, mc, coord)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	mc.ClearPublished()
	b.handleSetMessage("minidsp/living-room-dsp/set/volume", []byte("-25.5"))

	cmds := coord.GetCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if cmds[0].MasterStatus == nil || cmds[0].MasterStatus.Volume == nil {
		t.Fatal("command missing volume field")
	}
	if *cmds[0].MasterStatus.Volume != -25.5 {
		t.Errorf("volume = %v, want -25.5", *cmds[0].MasterStatus.Volume)
	}

	acks := mc.PublishedTo("minidsp/living-room-dsp/ack")
	if len(acks) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
		t.Fatalf("failed to unmarshal ack: %v", err)
	}
	if ack.Status != AckAccepted {
		t.Errorf("ack status = %v, want %v", ack.Status, AckAccepted)
	}
	if ack.Field != "volume" || ack.Value != "-25.5" {
		t.Errorf("ack field/value = %s/%s, want volume/-25.5", ack.Field, ack.Value)
	}
	if ack.CommandID == "" {
		t.Error("ack command_id should be set")
	}
	if acks[0].Retained {
		t.Error("acks should not be retained")
	}
}

func TestBridgeMuteCommandSpellings(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"true", true},
		{"on", true},
		{"ON", true},
		{"1", true},
		{"false", false},
		{"off", false},
		{"0", false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			mc := NewMockMQTTClient()
			coord := NewMockCoordinator()
			b := createTestBridge(t, mc, coord)

			b.handleSetMessage("minidsp/living-room-dsp/set/mute", []byte(tt.payload))

			cmds := coord.GetCommands()
			if len(cmds) != 1 {
				t.Fatalf("expected 1 command, got %d", len(cmds))
			}
			if cmds[0].MasterStatus == nil || cmds[0].MasterStatus.Mute == nil {
				t.Fatal("command missing mute field")
			}
			if *cmds[0].MasterStatus.Mute != tt.want {
				t.Errorf("mute = %v, want %v", *cmds[0].MasterStatus.Mute, tt.want)
			}
		})
	}
}

func TestBridgeSourceCommand(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleSetMessage("minidsp/living-room-dsp/set/source", []byte("toslink"))

	cmds := coord.GetCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if cmds[0].MasterStatus == nil || cmds[0].MasterStatus.Source == nil {
		t.Fatal("command missing source field")
	}
	if *cmds[0].MasterStatus.Source != "Toslink" {
		t.Errorf("source = %q, want %q", *cmds[0].MasterStatus.Source, "Toslink")
	}
}

func TestBridgePresetCommand(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleSetMessage("minidsp/living-room-dsp/set/preset", []byte("2"))

	cmds := coord.GetCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if cmds[0].MasterStatus == nil || cmds[0].MasterStatus.Preset == nil {
		t.Fatal("command missing preset field")
	}
	if *cmds[0].MasterStatus.Preset != 2 {
		t.Errorf("preset = %d, want 2", *cmds[0].MasterStatus.Preset)
	}
}

func TestBridgeDiracCommand(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleSetMessage("minidsp/living-room-dsp/set/dirac", []byte("off"))

	cmds := coord.GetCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if cmds[0].MasterStatus == nil || cmds[0].MasterStatus.Dirac == nil {
		t.Fatal("command missing dirac field")
	}
	if *cmds[0].MasterStatus.Dirac {
		t.Error("dirac = true, want false")
	}
}

func TestBridgeOutputGainCommand(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleSetMessage("minidsp/living-room-dsp/set/output_gain", []byte(`{"index":1,"gain":-3.5}`))

	cmds := coord.GetCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if len(cmds[0].Outputs) != 1 {
		t.Fatalf("expected 1 output entry, got %d", len(cmds[0].Outputs))
	}
	if cmds[0].Outputs[0].Index != 1 || cmds[0].Outputs[0].Gain != -3.5 {
		t.Errorf("output gain = %+v, want {Index:1 Gain:-3.5}", cmds[0].Outputs[0])
	}
}

func TestBridgeUnknownCommandField(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleSetMessage("minidsp/living-room-dsp/set/bass", []byte("11"))

	if cmds := coord.GetCommands(); len(cmds) != 0 {
		t.Errorf("expected 0 commands, got %d", len(cmds))
	}

	acks := mc.PublishedTo("minidsp/living-room-dsp/ack")
	if len(acks) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
		t.Fatalf("failed to unmarshal ack: %v", err)
	}
	if ack.Status != AckFailed {
		t.Errorf("ack status = %v, want %v", ack.Status, AckFailed)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeUnknownCommand {
		t.Errorf("ack error = %+v, want code %s", ack.Error, ErrCodeUnknownCommand)
	}
}

func TestBridgeInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		payload string
	}{
		{"volume not a number", "volume", "loud"},
		{"mute not a boolean", "mute", "maybe"},
		{"preset out of range", "preset", "9"},
		{"preset not an integer", "preset", "two"},
		{"source unknown", "source", "vinyl"},
		{"output gain not json", "output_gain", "-3.5"},
		{"output gain out of range", "output_gain", `{"index":0,"gain":40}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := NewMockMQTTClient()
			coord := NewMockCoordinator()
			b := createTestBridge(t, mc, coord)

			b.handleSetMessage("minidsp/living-room-dsp/set/"+tt.field, []byte(tt.payload))

			if cmds := coord.GetCommands(); len(cmds) != 0 {
				t.Errorf("expected 0 commands, got %d", len(cmds))
			}

			acks := mc.PublishedTo("minidsp/living-room-dsp/ack")
			if len(acks) != 1 {
				t.Fatalf("expected 1 ack, got %d", len(acks))
			}
			var ack AckMessage
			if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
				t.Fatalf("failed to unmarshal ack: %v", err)
			}
			if ack.Status != AckFailed {
				t.Errorf("ack status = %v, want %v", ack.Status, AckFailed)
			}
			if ack.Error == nil || ack.Error.Code != ErrCodeInvalidPayload {
				t.Errorf("ack error = %+v, want code %s", ack.Error, ErrCodeInvalidPayload)
			}
		})
	}
}

func TestBridgeCommandDeviceError(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetCommandError(errors.New("device unreachable"))

	b := createTestBridge(t, mc, coord)
	b.handleSetMessage("minidsp/living-room-dsp/set/volume", []byte("-20"))

	// Accepted first, then failed once the device rejects it
	acks := mc.PublishedTo("minidsp/living-room-dsp/ack")
	if len(acks) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(acks))
	}

	var first, second AckMessage
	if err := json.Unmarshal(acks[0].Payload, &first); err != nil {
		t.Fatalf("failed to unmarshal first ack: %v", err)
	}
	if err := json.Unmarshal(acks[1].Payload, &second); err != nil {
		t.Fatalf("failed to unmarshal second ack: %v", err)
	}

	if first.Status != AckAccepted {
		t.Errorf("first ack status = %v, want %v", first.Status, AckAccepted)
	}
	if second.Status != AckFailed {
		t.Errorf("second ack status = %v, want %v", second.Status, AckFailed)
	}
	if second.Error == nil || second.Error.Code != ErrCodeDeviceError {
		t.Errorf("second ack error = %+v, want code %s", second.Error, ErrCodeDeviceError)
	}
}

func TestBridgeForeignTopicIgnored(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleSetMessage("minidsp/other-device/set/volume", []byte("-20"))

	if cmds := coord.GetCommands(); len(cmds) != 0 {
		t.Errorf("expected 0 commands, got %d", len(cmds))
	}
	if acks := mc.PublishedTo("minidsp/living-room-dsp/ack"); len(acks) != 0 {
		t.Errorf("expected 0 acks, got %d", len(acks))
	}
}

func TestBridgeRefreshTrigger(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	b := createTestBridge(t, mc, coord)

	b.handleRefreshMessage("minidsp/living-room-dsp/refresh", nil)

	if got := coord.RefreshCount(); got != 1 {
		t.Errorf("refresh count = %d, want 1", got)
	}
}

func TestBridgeStopDetachesListener(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetReady(false)

	b := createTestBridge(t, mc, coord)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	b.Stop()
	mc.ClearPublished()

	coord.SimulateChange(testState())
	if got := mc.GetPublished(); len(got) != 0 {
		t.Errorf("expected no publishes after Stop, got %d", len(got))
	}
}

func TestBridgeMetrics(t *testing.T) {
	mc := NewMockMQTTClient()
	coord := NewMockCoordinator()
	coord.SetReady(false)

	b := createTestBridge(t, mc, coord)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	coord.SimulateChange(testState())
	b.handleSetMessage("minidsp/living-room-dsp/set/volume", []byte("-20"))
	b.handleSetMessage("minidsp/living-room-dsp/set/volume", []byte("loud"))

	m := b.GetMetrics()
	if !m.Connected {
		t.Error("metrics Connected = false, want true")
	}
	if m.Status != "healthy" {
		t.Errorf("metrics Status = %q, want %q", m.Status, "healthy")
	}
	if m.CommandsReceived != 2 {
		t.Errorf("metrics CommandsReceived = %d, want 2", m.CommandsReceived)
	}
	if m.CommandsFailed != 1 {
		t.Errorf("metrics CommandsFailed = %d, want 1", m.CommandsFailed)
	}
	if m.StatePublishes == 0 {
		t.Error("metrics StatePublishes = 0, want > 0")
	}

	mc.SetConnected(false)
	if got := b.GetMetrics().Status; got != "disconnected" {
		t.Errorf("metrics Status = %q, want %q", got, "disconnected")
	}
}

func TestFormatScalar(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"int", -20, "-20"},
		{"int64", int64(3), "3"},
		{"float", -1.5, "-1.5"},
		{"float whole", 2.0, "2"},
		{"string", "Toslink", "Toslink"},
		{"slice falls back to json", []any{1, 2}, "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatScalar(tt.in); got != tt.want {
				t.Errorf("formatScalar(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCommandErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown field", ErrUnknownCommand, ErrCodeUnknownCommand},
		{"bad payload", ErrInvalidPayload, ErrCodeInvalidPayload},
		{"unknown source", minidsp.ErrUnknownSource, ErrCodeInvalidPayload},
		{"bad preset", minidsp.ErrInvalidPreset, ErrCodeInvalidPayload},
		{"bad gain", minidsp.ErrInvalidGain, ErrCodeInvalidPayload},
		{"anything else", errors.New("boom"), ErrCodeBridgeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandErrorCode(tt.err); got != tt.want {
				t.Errorf("commandErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
