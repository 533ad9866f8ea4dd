// Package minidsp implements the device core: state ownership, change
// distribution, and the HTTP/WebSocket transport for minidsp-rs devices.
//
// This package talks to the minidsp-rs HTTP API and its WebSocket level
// stream, maintains the authoritative latest-known device state, and
// fans out change notifications to local consumers (MQTT bridge, API,
// telemetry).
//
// # Architecture
//
// The coordinator sits between the device transport and the consumers:
//
//	┌─────────────┐   HTTP    ┌──────────────┐  notify  ┌─────────────┐
//	│  minidsp-rs │◄─────────►│  Coordinator │─────────►│  Listeners  │
//	│   daemon    │    WS     │  (this pkg)  │          │ (bridge/api)│
//	└─────────────┘──────────►└──────────────┘          └─────────────┘
//
// # Key Responsibilities
//
//   - Fetch full device status over HTTP and send configuration commands
//   - Maintain the level stream WebSocket with automatic reconnection
//   - Merge stream events into the cached state
//   - Round level and volume readings to integers for stable comparison
//   - Notify subscribed listeners with isolated state snapshots
//
// # State Updates
//
// Two kinds of update flow through the coordinator, with different
// notification rules:
//
//   - Full refresh (HTTP GET): the fetched status replaces the cached
//     state wholesale and listeners are always notified, even when the
//     new state is identical. A refresh is an explicit request for the
//     current picture.
//   - Stream event (WebSocket frame): the event is merged into the
//     cached state field by field and listeners are notified only when
//     the merge changed something. Level frames arrive continuously, so
//     unchanged readings would otherwise flood consumers.
//
// Numeric readings are rounded to integers on the way in, except output
// gain entries, which keep their decimal precision.
//
// # Reconnection
//
// The stream client retries failed connections indefinitely with
// exponential backoff, starting at one second and doubling to a cap of
// sixty seconds. A successful connection resets the backoff. The loop
// runs while at least one subscriber is registered; cancelling the last
// subscription stops it and blocks until the loop goroutine has exited.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple
// goroutines. Callbacks must not cancel their own subscription from
// inside the callback.
//
// # References
//
//   - minidsp-rs: https://github.com/mrene/minidsp-rs
//   - HTTP API: https://minidsp-rs.pages.dev/daemon/http
package minidsp
