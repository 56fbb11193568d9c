package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sqreamdb/monitor-service/internal/config"
)

// TransportError is a connectivity-level push failure: the envelope may be
// retried on the next cycle.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("loki %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError means Loki refused the envelope as malformed. Retrying the
// same payload cannot succeed, so the caller should drop it.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("loki rejected push: status %d", e.Status)
	}
	return fmt.Sprintf("loki rejected push: status %d: %s", e.Status, e.Body)
}

// Client pushes envelopes to a Loki instance. Safe for concurrent use: each
// push is a complete, independent request on a pooled http.Client.
type Client struct {
	pushURL  string
	readyURL string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a Loki client from config.
func NewClient(cfg *config.LokiConfig, logger *slog.Logger) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.GetPushTimeout()

	return &Client{
		pushURL:  cfg.GetPushURL(),
		readyURL: cfg.GetReadyURL(),
		client:   httpClient,
		logger:   logger.With("component", "loki"),
	}
}

// Push delivers one envelope. Connectivity failures and 5xx responses come
// back as *TransportError, 4xx responses as *RejectedError.
func (c *Client) Push(ctx context.Context, envelope PushRequest) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		// Envelope values are pre-encoded strings, so this should not happen.
		return &RejectedError{Body: fmt.Sprintf("marshal push request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: "push", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("envelope accepted", "status", resp.StatusCode, "bytes", len(body))
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &RejectedError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return &TransportError{
		Op:  "push",
		Err: fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(respBody))),
	}
}

// Ready probes the Loki readiness endpoint.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.readyURL, nil)
	if err != nil {
		return fmt.Errorf("build ready request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: "ready", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", c.readyURL, resp.Status)
	}
	return nil
}
