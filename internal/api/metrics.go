package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Device        map[string]any `json:"device"`
	Stream        StreamMetrics  `json:"stream"`
	Bridge        *BridgeStats   `json:"bridge,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// StreamMetrics contains level-stream statistics.
type StreamMetrics struct {
	State         string `json:"state"`
	FramesRx      uint64 `json:"frames_rx"`
	FramesDropped uint64 `json:"frames_dropped"`
	ConnectsTotal uint64 `json:"connects_total"`
	ErrorsTotal   uint64 `json:"errors_total"`
	Subscribers   int    `json:"subscribers"`
	LastActivity  string `json:"last_activity,omitempty"`
}

// BridgeStats contains MQTT bridge statistics.
type BridgeStats struct {
	Connected        bool   `json:"connected"`
	Status           string `json:"status"`
	StatePublishes   uint64 `json:"state_publishes"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stream := s.coordinator.StreamStats()

	// Build metrics response
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Device: s.coordinator.GetMetrics(),
		Stream: StreamMetrics{
			State:         stream.State,
			FramesRx:      stream.FramesRx,
			FramesDropped: stream.FramesDropped,
			ConnectsTotal: stream.ConnectsTotal,
			ErrorsTotal:   stream.ErrorsTotal,
			Subscribers:   stream.Subscribers,
		},
	}

	if !stream.LastActivity.IsZero() {
		metrics.Stream.LastActivity = stream.LastActivity.UTC().Format(time.RFC3339)
	}

	// Bridge metrics (if available)
	if s.bridge != nil {
		bridgeStats := s.bridge.GetMetrics()
		metrics.Bridge = &BridgeStats{
			Connected:        bridgeStats.Connected,
			Status:           bridgeStats.Status,
			StatePublishes:   bridgeStats.StatePublishes,
			CommandsReceived: bridgeStats.CommandsReceived,
			CommandsFailed:   bridgeStats.CommandsFailed,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
