// Package api exposes the monitor's own status surface: liveness, readiness
// and a per-task snapshot of every metric polling loop.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sqreamdb/monitor-service/internal/middleware"
	"github.com/sqreamdb/monitor-service/internal/poller"
)

// StatusSource is the scheduler surface the API reads from.
type StatusSource interface {
	IsRunning() bool
	RunID() string
	Snapshot() []poller.TaskStatus
}

// NewRouter creates and configures the status API router
func NewRouter(source StatusSource, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	healthHandler := NewHealthHandler(source)
	taskHandler := NewTaskHandler(source)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tasks", taskHandler.List)
		r.Get("/metrics", taskHandler.KnownMetrics)
	})

	return r
}
