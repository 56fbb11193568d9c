package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sqreamdb/monitor-service/internal/database"
	"github.com/sqreamdb/monitor-service/internal/loki"
)

// Scheduler owns the configured metric set and launches one poll task per
// spec. Tasks are fire-and-forget goroutines supervised only for failure
// logging: a task whose loop exits is not restarted, that one metric stops
// being monitored and the process keeps running.
type Scheduler struct {
	querier database.Querier
	sink    Sink
	encoder *loki.Encoder
	logger  *slog.Logger
	runID   string

	mu      sync.Mutex
	running bool
	tasks   []*Task
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. The query handle is shared by all tasks
// and must be safe for concurrent use (the pgx pool is).
func NewScheduler(querier database.Querier, sink Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		querier: querier,
		sink:    sink,
		encoder: loki.NewEncoder(logger),
		logger:  logger.With("component", "scheduler"),
		runID:   uuid.New().String(),
	}
}

// Start validates the specs and launches one goroutine per metric. It
// returns immediately after launch; callers block on an external termination
// signal, never on an individual task.
func (s *Scheduler) Start(ctx context.Context, specs []MetricSpec) error {
	if err := ValidateSpecs(specs); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true

	for _, spec := range specs {
		task := NewTask(spec, s.querier, s.sink, s.encoder, s.logger)
		s.tasks = append(s.tasks, task)
		s.wg.Add(1)
		go func(task *Task) {
			defer s.wg.Done()
			s.runTask(ctx, task)
		}(task)
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started", "run_id", s.runID, "tasks", len(specs))
	return nil
}

// runTask isolates one task's lifetime. A panic is contained here: the task
// is marked failed and logged, the other metrics keep polling.
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			task.markFailed(err)
			s.logger.Error("poll task failed",
				"metric", task.spec.Name,
				"classification", "fatal",
				"error", err,
			)
		}
	}()

	if err := task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("poll task exited", "metric", task.spec.Name, "error", err)
	}
}

// Wait blocks until every task has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// IsRunning reports whether Start has launched the tasks.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunID identifies this scheduler run in logs and the status API.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Snapshot returns the current status of every task, ordered as launched.
func (s *Scheduler) Snapshot() []TaskStatus {
	s.mu.Lock()
	tasks := make([]*Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, task.Status())
	}
	return statuses
}
