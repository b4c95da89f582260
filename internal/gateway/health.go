package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      time.Duration   `json:"uptime_seconds"`
	Metrics     MetricsSnapshot `json:"metrics"`
	Subscribers int             `json:"event_subscribers"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			Uptime:      time.Since(g.startedAt).Truncate(time.Second),
			Metrics:     g.metrics.Snapshot(),
			Subscribers: g.hub.Len(),
		})
	}
}
