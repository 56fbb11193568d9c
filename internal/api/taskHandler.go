package api

import (
	"net/http"

	"github.com/sqreamdb/monitor-service/internal/metrics"
)

// TaskHandler serves poll task snapshots
type TaskHandler struct {
	source StatusSource
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(source StatusSource) *TaskHandler {
	return &TaskHandler{source: source}
}

// TaskListResponse represents the task snapshot response
type TaskListResponse struct {
	RunID string `json:"run_id"`
	Count int    `json:"count"`
	Tasks any    `json:"tasks"`
}

// List handles GET /api/v1/tasks
func (h *TaskHandler) List(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.source.Snapshot()
	sendJSON(w, http.StatusOK, TaskListResponse{
		RunID: h.source.RunID(),
		Count: len(snapshot),
		Tasks: snapshot,
	})
}

// KnownMetrics handles GET /api/v1/metrics: the allowed metric names
func (h *TaskHandler) KnownMetrics(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"metrics": metrics.Known(),
	})
}
