// Package loki implements the push envelope encoding and the HTTP client
// for the Loki log-ingestion API.
package loki

// PushRequest is the body of a Loki push call:
// https://grafana.com/docs/loki/latest/reference/loki-http-api/#ingest-logs
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one labeled batch of log lines. Each value is a
// [<unix nanoseconds as string>, <log line>] pair.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}
