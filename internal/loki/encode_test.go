package loki

import (
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/sqreamdb/monitor-service/internal/metrics"
)

func testEncoder() *Encoder {
	return NewEncoder(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEncode_EnvelopeShape(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	records := []metrics.Record{
		{{Name: "a", Value: 1}},
		{{Name: "a", Value: 2}},
	}

	envelope := testEncoder().Encode("show_locks", ts, records)

	if len(envelope.Streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(envelope.Streams))
	}
	stream := envelope.Streams[0]
	if stream.Stream["metric_name"] != "show_locks" {
		t.Errorf("label set = %v, want metric_name=show_locks", stream.Stream)
	}
	if len(stream.Values) != 2 {
		t.Fatalf("got %d values, want 2", len(stream.Values))
	}

	wantTS := strconv.FormatInt(ts.UnixNano(), 10)
	for i, value := range stream.Values {
		if value[0] != wantTS {
			t.Errorf("value %d timestamp = %q, want %q (shared cycle timestamp)", i, value[0], wantTS)
		}
	}
}

func TestEncode_RecordFieldOrderPreserved(t *testing.T) {
	records := []metrics.Record{{
		{Name: "zeta", Value: 1},
		{Name: "alpha", Value: "x"},
		{Name: "nil_col", Value: nil},
	}}

	envelope := testEncoder().Encode("show_locks", time.Now(), records)

	want := `{"zeta":1,"alpha":"x","nil_col":null}`
	if got := envelope.Streams[0].Values[0][1]; got != want {
		t.Errorf("log line = %s, want %s", got, want)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	records := []metrics.Record{{
		{Name: "statement_id", Value: float64(42)},
		{Name: "username", Value: "sqream"},
		{Name: "locked", Value: true},
	}}

	envelope := testEncoder().Encode("show_locks", time.Now(), records)

	// A test double sink would decode the line the same way
	var decoded map[string]any
	if err := json.Unmarshal([]byte(envelope.Streams[0].Values[0][1]), &decoded); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if decoded["statement_id"] != float64(42) || decoded["username"] != "sqream" || decoded["locked"] != true {
		t.Errorf("round-tripped record = %v", decoded)
	}
}

func TestEncode_SubstitutesUnserializableValue(t *testing.T) {
	records := []metrics.Record{{
		{Name: "good", Value: "ok"},
		{Name: "bad", Value: make(chan int)},
	}}

	envelope := testEncoder().Encode("show_locks", time.Now(), records)

	line := envelope.Streams[0].Values[0][1]
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("log line with substitution is not valid JSON: %v: %s", err, line)
	}
	if decoded["good"] != "ok" {
		t.Errorf("good field lost: %v", decoded)
	}
	if _, isString := decoded["bad"].(string); !isString {
		t.Errorf("bad field = %v, want lossy string substitution", decoded["bad"])
	}
}

func TestEncode_MarshalsAsLokiPushBody(t *testing.T) {
	envelope := testEncoder().Encode("show_locks", time.Unix(0, 1570818238000000000),
		[]metrics.Record{{{Name: "foo", Value: "bar"}}})

	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	want := `{"streams":[{"stream":{"metric_name":"show_locks"},"values":[["1570818238000000000","{\"foo\":\"bar\"}"]]}]}`
	if string(body) != want {
		t.Errorf("body = %s\nwant %s", body, want)
	}
}
