// Package bridge mirrors a MiniDSP device onto MQTT for home-automation
// consumers.
//
// The bridge subscribes to the device coordinator and republishes every
// state snapshot onto a retained topic tree: one topic per master control
// field, one for the output channel settings, and non-retained topics for
// the level meters. Inbound set topics translate bare payloads into device
// commands; a refresh topic forces a full state fetch.
//
// # Architecture
//
// The bridge sits between the device coordinator and the MQTT broker:
//
//	┌─────────────────┐            ┌─────────────────┐
//	│     Device      │  snapshots │     Bridge      │   MQTT
//	│   Coordinator   │───────────►│   (this pkg)    │◄────────► Broker
//	└─────────────────┘  commands  └─────────────────┘
//
// # Key Responsibilities
//
//   - Publish state snapshots to retained per-field topics
//   - Suppress republishing of unchanged payloads
//   - Translate set-topic payloads to validated device commands
//   - Acknowledge every command with an accepted or failed result
//   - Publish periodic health status
//
// # Topics
//
// All topics live under a configurable prefix and a slug derived from the
// device display name (see the infrastructure mqtt package):
//
//	minidsp/living-room-dsp/volume        outbound, retained
//	minidsp/living-room-dsp/set/volume    inbound command
//	minidsp/living-room-dsp/ack           command acknowledgements
//	minidsp/living-room-dsp/health        periodic health report
//
// Set-topic payloads are bare scalars ("-20.5", "on", "toslink", "2")
// except output_gain, which takes a small JSON object.
//
// # Usage
//
//	b, err := bridge.NewBridge(bridge.BridgeOptions{
//	    DeviceName:  "Living Room DSP",
//	    TopicPrefix: "minidsp",
//	    QoS:         1,
//	    MQTTClient:  mqttAdapter,
//	    Coordinator: coordinator,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Command handlers run
// on the MQTT client's goroutines; state publishing runs on the
// coordinator's notification path.
package bridge
