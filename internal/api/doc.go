// Package api implements the local HTTP REST API and WebSocket server.
//
// This package provides:
//   - REST endpoints for the device state snapshot, commands and refresh
//   - WebSocket hub for real-time state snapshot broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for non-localhost deployments
//
// # Architecture
//
//	┌────────────┐   REST / WS    ┌────────────┐  commands   ┌─────────────┐
//	│ UI clients │ ─────────────▶ │ API server │ ──────────▶ │ Coordinator │
//	└────────────┘                └────────────┘ ◀────────── └─────────────┘
//	                                               snapshots
//
// The server sits between user interfaces and the device coordinator.
// Commands flow through the coordinator to the DSP, and every state change
// the coordinator observes is broadcast to subscribed WebSocket clients.
//
// # Security
//
// Login exchanges the configured API password for a short-lived HS256
// bearer token. WebSocket connections use single-use tickets so tokens
// never leak into URLs or access logs.
//
// # Graceful Degradation
//
// The server operates without the MQTT bridge and without the telemetry
// writer; their statistics simply drop out of the metrics endpoint.
package api
