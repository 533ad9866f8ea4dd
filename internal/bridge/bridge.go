package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/minidsp-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
)

// Bridge operation constants.
const (
	// commandTimeout bounds device command execution, including the
	// follow-up state refresh.
	commandTimeout = 5 * time.Second

	// refreshTimeout bounds an MQTT-triggered full state refresh.
	refreshTimeout = 10 * time.Second
)

// masterFields are the master-control keys mirrored onto per-field
// topics, in publish order.
var masterFields = []string{"volume", "mute", "source", "preset", "dirac"}

// Bridge republishes device state onto MQTT and translates inbound
// command topics into device commands. It handles:
//   - Coordinator snapshots to retained state topics with change suppression
//   - Set-topic payloads to validated device commands with acknowledgements
//   - Refresh-topic triggers to full state fetches
//   - Periodic health reporting
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt        MQTTClient
	coordinator Coordinator
	topics      mqtt.Topics
	qos         byte
	health      *HealthReporter

	// Last payload per topic for change suppression
	published   map[string][]byte
	publishedMu sync.Mutex

	// Coordinator listener removal, set by Start
	unsubscribe func()

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Statistics (atomic for performance)
	statePublishes   atomic.Uint64
	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the interface for structured logging.
// Compatible with slog-style loggers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Coordinator is the device coordinator surface the bridge consumes.
// Implemented by *minidsp.Coordinator; mocked in tests.
type Coordinator interface {
	// Subscribe registers a listener for state snapshots. The returned
	// function removes the listener.
	Subscribe(l minidsp.Listener) (func(), error)

	// Snapshot returns the latest state, or nil before the first refresh.
	Snapshot() minidsp.State

	// RequestRefresh fetches the full device state immediately.
	RequestRefresh(ctx context.Context) error

	// IssueCommand applies a partial configuration to the device.
	IssueCommand(ctx context.Context, cmd minidsp.Command) error

	// Ready reports whether the first refresh has completed.
	Ready() bool

	// StreamStats returns stream client statistics.
	StreamStats() minidsp.StreamStats
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// DeviceName is the device display name, slugified into topic paths.
	// Default: "MiniDSP".
	DeviceName string

	// TopicPrefix is the MQTT topic root. Default: mqtt.DefaultPrefix.
	TopicPrefix string

	// QoS is the level used for publishes and subscriptions.
	QoS byte

	// Version is the daemon version reported in health messages.
	Version string

	// HealthInterval is how often health status is published.
	// Default: 30 seconds.
	HealthInterval time.Duration

	// MQTTClient is the broker connection. Required.
	MQTTClient MQTTClient

	// Coordinator is the device coordinator. Required.
	Coordinator Coordinator

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	name := opts.DeviceName
	if name == "" {
		name = "MiniDSP"
	}
	topics := mqtt.NewTopics(opts.TopicPrefix, name)

	// Bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:        opts.MQTTClient,
		coordinator: opts.Coordinator,
		topics:      topics,
		qos:         opts.QoS,
		published:   make(map[string][]byte),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		DeviceName:  name,
		Version:     opts.Version,
		Topic:       topics.Health(),
		Interval:    opts.HealthInterval,
		Publisher:   opts.MQTTClient,
		Coordinator: opts.Coordinator,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Topics returns the topic set the bridge publishes and subscribes on.
func (b *Bridge) Topics() mqtt.Topics {
	return b.topics
}

// Start begins bridge operation.
// This subscribes to the command and refresh topics, registers the
// coordinator listener, seeds the retained topics from the current
// snapshot, and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Subscribe to command topics
	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleSetMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Subscribe to the refresh trigger
	refreshTopic := b.topics.Refresh()
	if err := b.mqtt.Subscribe(refreshTopic, b.qos, b.handleRefreshMessage); err != nil {
		return fmt.Errorf("subscribe to refresh: %w", err)
	}
	b.logInfo("subscribed to refresh", "topic", refreshTopic)

	// Wire the coordinator's snapshots through to the topic tree
	unsubscribe, err := b.coordinator.Subscribe(b.publishState)
	if err != nil {
		return fmt.Errorf("subscribe to coordinator: %w", err)
	}
	b.unsubscribe = unsubscribe

	// Seed retained topics so consumers see state before the next change
	if b.coordinator.Ready() {
		b.publishState(b.coordinator.Snapshot())
	}

	// Start health reporting
	b.health.Start(ctx)

	// Publish initial health status
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health status", err)
	}

	b.logInfo("bridge started",
		"device", b.topics.Device(),
		"prefix", b.topics.Prefix())

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Detach from the coordinator first so no snapshots arrive
		// after shutdown begins
		if b.unsubscribe != nil {
			b.unsubscribe()
		}

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// publishState mirrors one state snapshot onto the topic tree. Payloads
// identical to the last publish are suppressed, so retained topics only
// update on real changes.
func (b *Bridge) publishState(st minidsp.State) {
	if st == nil {
		return
	}

	if payload, err := json.Marshal(st); err != nil {
		b.logError("failed to marshal state", err)
	} else {
		b.publishIfChanged(b.topics.State(), payload, true)
	}

	if master, ok := st["master"].(map[string]any); ok {
		for _, field := range masterFields {
			v, ok := master[field]
			if !ok {
				continue
			}
			b.publishIfChanged(b.topics.Field(field), []byte(formatScalar(v)), true)
		}
	}

	if outputs, ok := st["outputs"]; ok {
		if payload, err := json.Marshal(outputs); err != nil {
			b.logError("failed to marshal outputs", err)
		} else {
			b.publishIfChanged(b.topics.Outputs(), payload, true)
		}
	}

	// Meter readings are transient, so these topics are not retained
	b.publishLevels(st, "input_levels", b.topics.InputLevels())
	b.publishLevels(st, "output_levels", b.topics.OutputLevels())
}

// publishLevels publishes one level meter slice if present.
func (b *Bridge) publishLevels(st minidsp.State, key, topic string) {
	levels, ok := st[key]
	if !ok {
		return
	}

	payload, err := json.Marshal(levels)
	if err != nil {
		b.logError("failed to marshal levels", err)
		return
	}

	b.publishIfChanged(topic, payload, false)
}

// publishIfChanged publishes a payload unless it matches the last one
// sent to the topic.
func (b *Bridge) publishIfChanged(topic string, payload []byte, retained bool) {
	if b.payloadUnchanged(topic, payload) {
		return
	}

	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		// Drop the cache entry so the next snapshot retries the topic
		b.forgetPayload(topic)
		b.logError("failed to publish state", err)
		return
	}

	b.statePublishes.Add(1)
}

// payloadUnchanged checks the payload against the last publish to the
// topic, caching it otherwise. Returns true if unchanged (skip publish).
func (b *Bridge) payloadUnchanged(topic string, payload []byte) bool {
	b.publishedMu.Lock()
	defer b.publishedMu.Unlock()

	if bytes.Equal(b.published[topic], payload) {
		return true
	}

	b.published[topic] = payload
	return false
}

// forgetPayload removes a topic's cache entry.
func (b *Bridge) forgetPayload(topic string) {
	b.publishedMu.Lock()
	delete(b.published, topic)
	b.publishedMu.Unlock()
}

// formatScalar renders a state value as a bare topic payload.
func formatScalar(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// handleSetMessage processes an inbound command from a set topic.
func (b *Bridge) handleSetMessage(topic string, payload []byte) {
	b.commandsReceived.Add(1)

	field, ok := b.topics.CommandField(topic)
	if !ok {
		b.commandsFailed.Add(1)
		b.logError("unrecognized command topic", fmt.Errorf("topic: %s", topic))
		return
	}

	id := uuid.New().String()
	value := strings.TrimSpace(string(payload))

	b.logInfo("received command",
		"command_id", id,
		"field", field,
		"value", value)

	cmd, err := buildCommand(field, value)
	if err != nil {
		b.commandsFailed.Add(1)
		b.publishAckError(id, field, value, commandErrorCode(err), err.Error())
		return
	}

	// Publish accepted ack before sending
	b.publishAck(id, field, value, AckAccepted)

	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.coordinator.IssueCommand(ctx, cmd); err != nil {
		b.commandsFailed.Add(1)
		b.publishAckError(id, field, value, ErrCodeDeviceError, err.Error())
		return
	}
}

// handleRefreshMessage triggers a full state refresh. The refreshed
// state reaches consumers through the usual state topics.
func (b *Bridge) handleRefreshMessage(_ string, _ []byte) {
	ctx, cancel := context.WithTimeout(b.ctx, refreshTimeout)
	defer cancel()

	if err := b.coordinator.RequestRefresh(ctx); err != nil {
		b.logError("requested refresh failed", err)
	}
}

// buildCommand translates a set-topic field and payload into a device
// command.
func buildCommand(field, value string) (minidsp.Command, error) {
	switch field {
	case "volume":
		db, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return minidsp.Command{}, fmt.Errorf("%w: volume %q is not a number", ErrInvalidPayload, value)
		}
		return minidsp.VolumeCommand(db), nil
	case "mute":
		on, err := parseBool(value)
		if err != nil {
			return minidsp.Command{}, fmt.Errorf("%w: mute %q is not a boolean", ErrInvalidPayload, value)
		}
		return minidsp.MuteCommand(on), nil
	case "dirac":
		on, err := parseBool(value)
		if err != nil {
			return minidsp.Command{}, fmt.Errorf("%w: dirac %q is not a boolean", ErrInvalidPayload, value)
		}
		return minidsp.DiracCommand(on), nil
	case "source":
		return minidsp.SourceCommand(value)
	case "preset":
		preset, err := strconv.Atoi(value)
		if err != nil {
			return minidsp.Command{}, fmt.Errorf("%w: preset %q is not an integer", ErrInvalidPayload, value)
		}
		return minidsp.PresetCommand(preset)
	case "output_gain":
		var og struct {
			Index int     `json:"index"`
			Gain  float64 `json:"gain"`
		}
		if err := json.Unmarshal([]byte(value), &og); err != nil {
			return minidsp.Command{}, fmt.Errorf(`%w: output_gain wants {"index":n,"gain":db}`, ErrInvalidPayload)
		}
		return minidsp.OutputGainCommand(og.Index, og.Gain)
	default:
		return minidsp.Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, field)
	}
}

// parseBool accepts the usual boolean spellings plus on/off.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(value)
}

// commandErrorCode maps a command build error to an ack error code.
func commandErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeUnknownCommand
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, minidsp.ErrUnknownSource),
		errors.Is(err, minidsp.ErrInvalidPreset),
		errors.Is(err, minidsp.ErrInvalidGain):
		return ErrCodeInvalidPayload
	default:
		return ErrCodeBridgeError
	}
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(id, field, value string, status AckStatus) {
	ack := NewAckMessage(id, field, value, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.Ack(), payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgement.
func (b *Bridge) publishAckError(id, field, value, code, message string) {
	ack := NewAckError(id, field, value, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.Ack(), payload, b.qos, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected        bool
	Status           string
	StatePublishes   uint64
	CommandsReceived uint64
	CommandsFailed   uint64
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	connected := b.mqtt.IsConnected()
	status := "disconnected"
	if connected {
		status = "healthy"
	}

	return BridgeMetrics{
		Connected:        connected,
		Status:           status,
		StatePublishes:   b.statePublishes.Load(),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
