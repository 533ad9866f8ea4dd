package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the topic root when the config leaves it empty.
const DefaultPrefix = "minidsp"

// Topics builds the bridge's MQTT topic names from the configured prefix
// and the device's slug. Using these helpers keeps topic naming
// consistent between the publisher and every subscriber.
//
// Topic hierarchy:
//
//	{prefix}/bridge/status             bridge availability (retained, LWT)
//	{prefix}/{device}/state            full state snapshot (retained)
//	{prefix}/{device}/volume           master volume in dB (retained)
//	{prefix}/{device}/mute             master mute (retained)
//	{prefix}/{device}/source           active input source (retained)
//	{prefix}/{device}/preset           active preset slot (retained)
//	{prefix}/{device}/dirac            Dirac Live state (retained)
//	{prefix}/{device}/outputs          output channel settings (retained)
//	{prefix}/{device}/levels/input     input meter readings
//	{prefix}/{device}/levels/output    output meter readings
//	{prefix}/{device}/set/{field}      inbound commands
//	{prefix}/{device}/refresh          inbound refresh trigger
//	{prefix}/{device}/ack              command acknowledgements
//	{prefix}/{device}/health           bridge health report (retained)
type Topics struct {
	prefix string
	device string
}

// NewTopics builds a topic set for one device. The device name is
// slugified; an empty prefix falls back to DefaultPrefix.
func NewTopics(prefix, deviceName string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix, device: Slug(deviceName)}
}

// Slug converts a device name into a topic-safe identifier: lower case,
// runs of non-alphanumeric characters collapsed to single hyphens.
//
// Example: "Living Room DSP" becomes "living-room-dsp".
func Slug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Prefix returns the configured topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// Device returns the device slug used in topic paths.
func (t Topics) Device() string {
	return t.device
}

// BridgeStatus returns the bridge availability topic, also used as the
// Last Will topic.
//
// Example: minidsp/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.prefix)
}

// State returns the full state snapshot topic.
//
// Example: minidsp/living-room-dsp/state
func (t Topics) State() string {
	return fmt.Sprintf("%s/%s/state", t.prefix, t.device)
}

// Field returns the topic for one master-control field.
//
// Example: minidsp/living-room-dsp/volume
func (t Topics) Field(name string) string {
	return fmt.Sprintf("%s/%s/%s", t.prefix, t.device, name)
}

// Outputs returns the output channel settings topic.
//
// Example: minidsp/living-room-dsp/outputs
func (t Topics) Outputs() string {
	return fmt.Sprintf("%s/%s/outputs", t.prefix, t.device)
}

// InputLevels returns the input meter readings topic.
//
// Example: minidsp/living-room-dsp/levels/input
func (t Topics) InputLevels() string {
	return fmt.Sprintf("%s/%s/levels/input", t.prefix, t.device)
}

// OutputLevels returns the output meter readings topic.
//
// Example: minidsp/living-room-dsp/levels/output
func (t Topics) OutputLevels() string {
	return fmt.Sprintf("%s/%s/levels/output", t.prefix, t.device)
}

// Command returns the inbound command topic for one field.
//
// Example: minidsp/living-room-dsp/set/volume
func (t Topics) Command(field string) string {
	return fmt.Sprintf("%s/%s/set/%s", t.prefix, t.device, field)
}

// AllCommands returns a pattern matching every command topic for the
// device.
//
// Pattern: minidsp/living-room-dsp/set/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/%s/set/+", t.prefix, t.device)
}

// CommandField extracts the field name from a command topic received via
// the AllCommands pattern. Returns false if the topic does not match.
func (t Topics) CommandField(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/set/", t.prefix, t.device)
	field, ok := strings.CutPrefix(topic, prefix)
	if !ok || field == "" || strings.Contains(field, "/") {
		return "", false
	}
	return field, true
}

// Refresh returns the inbound refresh trigger topic.
//
// Example: minidsp/living-room-dsp/refresh
func (t Topics) Refresh() string {
	return fmt.Sprintf("%s/%s/refresh", t.prefix, t.device)
}

// Ack returns the command acknowledgement topic.
//
// Example: minidsp/living-room-dsp/ack
func (t Topics) Ack() string {
	return fmt.Sprintf("%s/%s/ack", t.prefix, t.device)
}

// Health returns the bridge health report topic.
//
// Example: minidsp/living-room-dsp/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/%s/health", t.prefix, t.device)
}
