package loki

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sqreamdb/monitor-service/internal/metrics"
)

// Encoder packs normalized records into Loki push envelopes.
type Encoder struct {
	logger *slog.Logger
}

// NewEncoder creates an Encoder.
func NewEncoder(logger *slog.Logger) *Encoder {
	return &Encoder{logger: logger.With("component", "encoder")}
}

// Encode wraps all records of one poll cycle into a single push request.
// Every record shares the cycle timestamp: the rows are a snapshot taken by
// one query, not independently timed samples.
func (e *Encoder) Encode(metricName string, timestamp time.Time, records []metrics.Record) PushRequest {
	ts := strconv.FormatInt(timestamp.UnixNano(), 10)

	values := make([][2]string, 0, len(records))
	for _, record := range records {
		values = append(values, [2]string{ts, e.encodeRecord(metricName, record)})
	}

	return PushRequest{
		Streams: []Stream{{
			Stream: map[string]string{"metric_name": metricName},
			Values: values,
		}},
	}
}

// encodeRecord renders one record as a JSON object, keeping the field order
// of the query result. A value the sink cannot represent is substituted with
// its string form rather than failing the envelope.
func (e *Encoder) encodeRecord(metricName string, record metrics.Record) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range record {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(field.Name)
		buf.Write(name)
		buf.WriteByte(':')

		value, err := json.Marshal(field.Value)
		if err != nil {
			e.logger.Warn("substituted unserializable value",
				"metric", metricName,
				"field", field.Name,
				"error", err,
			)
			value, _ = json.Marshal(fmt.Sprintf("%v", field.Value))
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.String()
}
