package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sqreamdb/monitor-service/internal/database"
	"github.com/sqreamdb/monitor-service/internal/loki"
	"github.com/sqreamdb/monitor-service/internal/metrics"
)

// Sink is the delivery capability consumed by poll tasks. Implementations
// must tolerate concurrent calls and return *loki.RejectedError when the
// sink refused the envelope as malformed; any other error is treated as a
// retryable transport failure.
type Sink interface {
	Push(ctx context.Context, envelope loki.PushRequest) error
}

// State is the current phase of a poll task's cycle.
type State string

const (
	StateWaiting     State = "waiting"
	StateQuerying    State = "querying"
	StateNormalizing State = "normalizing"
	StateEncoding    State = "encoding"
	StatePushing     State = "pushing"
	StateSleeping    State = "sleeping"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// TaskStatus is a point-in-time snapshot of one poll task.
type TaskStatus struct {
	Metric              string    `json:"metric"`
	State               State     `json:"state"`
	IntervalSeconds     float64   `json:"interval_seconds"`
	SendToLoki          bool      `json:"send_to_loki"`
	Cycles              uint64    `json:"cycles"`
	PushedCycles        uint64    `json:"pushed_cycles"`
	LastRowCount        int       `json:"last_row_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success"`
}

// Task is one long-lived polling loop for a single metric. All mutable
// cycle state is owned by the task; nothing is shared between tasks.
type Task struct {
	spec    MetricSpec
	querier database.Querier
	sink    Sink
	encoder *loki.Encoder
	logger  *slog.Logger

	mu                  sync.Mutex
	state               State
	cycles              uint64
	pushedCycles        uint64
	lastRowCount        int
	consecutiveFailures int
	lastError           string
	lastSuccess         time.Time
}

// NewTask creates a poll task for one metric spec.
func NewTask(spec MetricSpec, querier database.Querier, sink Sink, encoder *loki.Encoder, logger *slog.Logger) *Task {
	return &Task{
		spec:    spec,
		querier: querier,
		sink:    sink,
		encoder: encoder,
		logger:  logger.With("metric", spec.Name),
		state:   StateWaiting,
	}
}

// Run executes poll cycles until the context is cancelled. The inter-cycle
// sleep starts after the cycle's work, so the effective period is interval
// plus work time; the interval is deliberately not compensated. Per-cycle
// errors are logged and contained: a transient query or push failure skips
// the rest of the cycle and the fixed interval acts as the retry delay.
func (t *Task) Run(ctx context.Context) error {
	t.logger.Info("poll task started",
		"interval", t.spec.Interval,
		"send_to_loki", t.spec.SendToLoki,
	)

	for {
		t.runCycle(ctx)

		t.setState(StateSleeping)
		timer := time.NewTimer(t.spec.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.setState(StateCancelled)
			t.logger.Info("poll task cancelled")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runCycle performs one query → normalize → encode → push pass. It never
// returns an error: every failure is classified, logged and absorbed so the
// loop keeps its cadence.
func (t *Task) runCycle(ctx context.Context) {
	t.beginCycle()

	result, err := t.querier.Execute(ctx, t.spec.Name)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.noteFailure(err)
		t.logger.Warn("query failed, skipping cycle",
			"classification", "retryable",
			"error", err,
		)
		return
	}
	timestamp := time.Now()

	t.setState(StateNormalizing)
	records := metrics.Normalize(result)
	t.noteRows(len(records))

	if len(records) == 0 {
		t.logger.Warn("query returned 0 rows, skipping push")
		t.noteSuccess(false)
		return
	}

	if !t.spec.SendToLoki {
		t.logger.Debug("metric is not forwarded to loki", "rows", len(records))
		t.noteSuccess(false)
		return
	}

	t.setState(StateEncoding)
	envelope := t.encoder.Encode(t.spec.Name, timestamp, records)

	t.setState(StatePushing)
	if err := t.sink.Push(ctx, envelope); err != nil {
		if ctx.Err() != nil {
			return
		}
		t.noteFailure(err)
		var rejected *loki.RejectedError
		if errors.As(err, &rejected) {
			// Resending the same payload cannot succeed; losing one cycle is
			// acceptable, halting the metric's monitoring is not.
			t.logger.Error("sink rejected envelope, dropping it",
				"classification", "rejected",
				"error", err,
			)
		} else {
			t.logger.Warn("push failed, envelope dropped",
				"classification", "retryable",
				"error", err,
			)
		}
		return
	}

	t.noteSuccess(true)
	t.logger.Debug("pushed records to loki", "rows", len(records))
}

// Status returns a snapshot of the task's current state and counters.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskStatus{
		Metric:              t.spec.Name,
		State:               t.state,
		IntervalSeconds:     t.spec.Interval.Seconds(),
		SendToLoki:          t.spec.SendToLoki,
		Cycles:              t.cycles,
		PushedCycles:        t.pushedCycles,
		LastRowCount:        t.lastRowCount,
		ConsecutiveFailures: t.consecutiveFailures,
		LastError:           t.lastError,
		LastSuccess:         t.lastSuccess,
	}
}

func (t *Task) setState(state State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *Task) beginCycle() {
	t.mu.Lock()
	t.state = StateQuerying
	t.cycles++
	t.mu.Unlock()
}

func (t *Task) noteRows(count int) {
	t.mu.Lock()
	t.lastRowCount = count
	t.mu.Unlock()
}

func (t *Task) noteSuccess(pushed bool) {
	t.mu.Lock()
	t.consecutiveFailures = 0
	t.lastError = ""
	t.lastSuccess = time.Now()
	if pushed {
		t.pushedCycles++
	}
	t.mu.Unlock()
}

func (t *Task) noteFailure(err error) {
	t.mu.Lock()
	t.consecutiveFailures++
	t.lastError = err.Error()
	t.mu.Unlock()
}

func (t *Task) markFailed(err error) {
	t.mu.Lock()
	t.state = StateFailed
	t.lastError = err.Error()
	t.mu.Unlock()
}
