package poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sqreamdb/monitor-service/internal/database"
)

func TestBuildSpecs(t *testing.T) {
	specs, err := BuildSpecs(map[string]int{
		"show_locks":          2,
		"reset_leveldb_stats": 60,
	})
	if err != nil {
		t.Fatalf("BuildSpecs failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}

	// Sorted by name: reset_leveldb_stats first
	if specs[0].Name != "reset_leveldb_stats" || specs[1].Name != "show_locks" {
		t.Errorf("spec order = %s, %s", specs[0].Name, specs[1].Name)
	}
	if specs[0].SendToLoki {
		t.Error("reset_leveldb_stats must not be forwarded")
	}
	if !specs[1].SendToLoki {
		t.Error("show_locks must be forwarded")
	}
	if specs[1].Interval != 2*time.Second {
		t.Errorf("interval = %s, want 2s", specs[1].Interval)
	}
}

func TestBuildSpecs_RejectsUnknownMetric(t *testing.T) {
	_, err := BuildSpecs(map[string]int{"show_tables": 2})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestBuildSpecs_RejectsEmptySet(t *testing.T) {
	if _, err := BuildSpecs(nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestValidateSpecs(t *testing.T) {
	cases := []struct {
		name  string
		specs []MetricSpec
	}{
		{"empty set", nil},
		{"duplicate name", []MetricSpec{
			{Name: "show_locks", Interval: time.Second},
			{Name: "show_locks", Interval: 2 * time.Second},
		}},
		{"zero interval", []MetricSpec{{Name: "show_locks", Interval: 0}}},
		{"negative interval", []MetricSpec{{Name: "show_locks", Interval: -time.Second}}},
		{"empty name", []MetricSpec{{Name: "", Interval: time.Second}}},
		{"unknown metric", []MetricSpec{{Name: "show_tables", Interval: time.Second}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateSpecs(tc.specs); !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}

	valid := []MetricSpec{
		{Name: "show_locks", Interval: time.Second, SendToLoki: true},
		{Name: "show_cluster_nodes", Interval: 2 * time.Second, SendToLoki: true},
	}
	if err := ValidateSpecs(valid); err != nil {
		t.Errorf("valid specs rejected: %v", err)
	}
}

func TestScheduler_StartRejectsInvalidSpecs(t *testing.T) {
	scheduler := NewScheduler(newFakeQuerier(nil), &fakeSink{}, discardLogger())
	err := scheduler.Start(context.Background(), nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
	if scheduler.IsRunning() {
		t.Error("scheduler running after rejected start")
	}
}

func TestScheduler_OneTaskPerSpec(t *testing.T) {
	querier := newFakeQuerier(func(string, int) (database.QueryResult, error) {
		return rowsResult(1), nil
	})
	sink := &fakeSink{}
	scheduler := NewScheduler(querier, sink, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	specs := []MetricSpec{
		{Name: "show_locks", Interval: 5 * time.Millisecond, SendToLoki: true},
		{Name: "show_cluster_nodes", Interval: 5 * time.Millisecond, SendToLoki: true},
	}
	if err := scheduler.Start(ctx, specs); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !scheduler.IsRunning() {
		t.Error("scheduler not running after start")
	}

	snapshot := scheduler.Snapshot()
	if len(snapshot) != len(specs) {
		t.Errorf("snapshot = %d tasks, want exactly %d", len(snapshot), len(specs))
	}

	// Double start must fail without spawning extra tasks
	if err := scheduler.Start(ctx, specs); err == nil {
		t.Error("second Start succeeded")
	}
	if got := len(scheduler.Snapshot()); got != len(specs) {
		t.Errorf("tasks after double start = %d, want %d", got, len(specs))
	}

	waitFor(t, time.Second, func() bool {
		return querier.callCount("show_locks") >= 1 && querier.callCount("show_cluster_nodes") >= 1
	}, "both metrics polled")

	cancel()
	scheduler.Wait()
}

func TestScheduler_FailingMetricDoesNotStallOthers(t *testing.T) {
	// show_locks never answers successfully; show_cluster_nodes must keep
	// pushing on its own cadence regardless.
	querier := newFakeQuerier(func(metric string, _ int) (database.QueryResult, error) {
		if metric == "show_locks" {
			return database.QueryResult{}, fmt.Errorf("connection refused")
		}
		return rowsResult(1), nil
	})
	sink := &fakeSink{}
	scheduler := NewScheduler(querier, sink, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	specs := []MetricSpec{
		{Name: "show_locks", Interval: 5 * time.Millisecond, SendToLoki: true},
		{Name: "show_cluster_nodes", Interval: 5 * time.Millisecond, SendToLoki: true},
	}
	if err := scheduler.Start(ctx, specs); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return sink.pushCount() >= 4 }, "healthy metric kept pushing")
	cancel()
	scheduler.Wait()

	for _, status := range scheduler.Snapshot() {
		switch status.Metric {
		case "show_locks":
			if status.ConsecutiveFailures == 0 {
				t.Error("show_locks should have recorded failures")
			}
			if status.PushedCycles != 0 {
				t.Errorf("show_locks pushed %d cycles, want 0", status.PushedCycles)
			}
		case "show_cluster_nodes":
			if status.PushedCycles == 0 {
				t.Error("show_cluster_nodes made no pushes")
			}
		}
	}

	for i := 0; i < sink.pushCount(); i++ {
		if got := sink.push(i).Streams[0].Stream["metric_name"]; got != "show_cluster_nodes" {
			t.Errorf("push %d from %q, want only the healthy metric", i, got)
		}
	}
}

func TestScheduler_ShutdownStopsAllTasks(t *testing.T) {
	querier := newFakeQuerier(func(string, int) (database.QueryResult, error) {
		return rowsResult(1), nil
	})
	scheduler := NewScheduler(querier, &fakeSink{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	specs := []MetricSpec{
		{Name: "show_locks", Interval: time.Hour, SendToLoki: true},
		{Name: "show_cluster_nodes", Interval: time.Hour, SendToLoki: true},
	}
	if err := scheduler.Start(ctx, specs); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return querier.callCount("show_locks") == 1 && querier.callCount("show_cluster_nodes") == 1
	}, "first cycles completed")

	cancel()
	done := make(chan struct{})
	go func() {
		scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not stop after cancellation")
	}

	for _, status := range scheduler.Snapshot() {
		if status.State != StateCancelled {
			t.Errorf("%s state = %s, want cancelled", status.Metric, status.State)
		}
	}
}
