package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	source StatusSource
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(source StatusSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /health (liveness probe)
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready handles GET /ready: ready once the scheduler has launched its tasks
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.source.IsRunning() {
		sendJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "starting",
			Timestamp: time.Now(),
		})
		return
	}
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
	})
}

func sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
