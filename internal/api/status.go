package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStatus is the response of GET /api/v1/status.
type SystemStatus struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Effects       EffectMetrics  `json:"effects"`
	Patches       int            `json:"patches"`
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

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

// EffectMetrics summarises the device effect registry.
type EffectMetrics struct {
	Instances    int `json:"instances"`
	Enabled      int `json:"enabled"`
	Pinned       int `json:"pinned"`
	Handles      int `json:"handles"`
	OwnedHandles int `json:"owned_handles"`
	Catalog      int `json:"catalog"`
}

// handleStatus returns a JSON overview of the process and registry.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
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
		Patches: s.panel.Len(),
	}

	if s.mqtt != nil {
		status.MQTT = MQTTMetrics{Configured: true, Connected: s.mqtt.IsConnected()}
	}

	infos := s.registry.Instances()
	status.Effects.Instances = len(infos)
	for _, info := range infos {
		if info.Enabled {
			status.Effects.Enabled++
		}
		if info.Pinned {
			status.Effects.Pinned++
		}
		status.Effects.Handles += len(info.Handles)
	}
	status.Effects.OwnedHandles = s.ownedHandleCount()
	status.Effects.Catalog = s.catalog.Len()

	writeJSON(w, http.StatusOK, status)
}
