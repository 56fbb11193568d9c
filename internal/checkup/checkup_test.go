package checkup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/sqreamdb/monitor-service/internal/config"
)

type fakeDatabase struct {
	pingFailures int
	pingCalls    int
	selectCalls  int
}

func (f *fakeDatabase) Ping(context.Context) error {
	f.pingCalls++
	if f.pingCalls <= f.pingFailures {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (f *fakeDatabase) SelectOne(context.Context) error {
	f.selectCalls++
	return nil
}

type fakeSink struct {
	failures int
	calls    int
}

func (f *fakeSink) Ready(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("loki not ready")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCfg() config.CheckupConfig {
	return config.CheckupConfig{Attempts: 3, BackoffMS: 1}
}

func TestRun_AllProbesPass(t *testing.T) {
	db := &fakeDatabase{}
	sink := &fakeSink{}
	if err := Run(context.Background(), testCfg(), db, sink, testLogger()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if db.pingCalls != 1 || db.selectCalls != 1 || sink.calls != 1 {
		t.Errorf("probe calls = ping %d, select %d, ready %d; want 1 each",
			db.pingCalls, db.selectCalls, sink.calls)
	}
}

func TestRun_RecoversFromTransientFailures(t *testing.T) {
	db := &fakeDatabase{pingFailures: 2}
	sink := &fakeSink{failures: 1}
	if err := Run(context.Background(), testCfg(), db, sink, testLogger()); err != nil {
		t.Fatalf("Run failed despite probes recovering within retry budget: %v", err)
	}
	if db.pingCalls != 3 {
		t.Errorf("ping calls = %d, want 3", db.pingCalls)
	}
}

func TestRun_ExhaustsRetries(t *testing.T) {
	db := &fakeDatabase{pingFailures: 10}
	sink := &fakeSink{}
	err := Run(context.Background(), testCfg(), db, sink, testLogger())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if db.pingCalls != 3 {
		t.Errorf("ping calls = %d, want exactly the retry budget (3)", db.pingCalls)
	}
	if sink.calls != 0 {
		t.Errorf("sink probed %d times after database checkup failed, want 0", sink.calls)
	}
}

func TestRun_SinkFailureIsFatal(t *testing.T) {
	db := &fakeDatabase{}
	sink := &fakeSink{failures: 10}
	if err := Run(context.Background(), testCfg(), db, sink, testLogger()); err == nil {
		t.Fatal("expected error when loki never becomes ready")
	}
}
