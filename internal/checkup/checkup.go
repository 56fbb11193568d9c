// Package checkup verifies external collaborators before any poll task
// starts: the SQream coordinator must answer queries and Loki must report
// ready. A failed checkup aborts startup with a non-zero exit.
package checkup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-retry"
	"github.com/sqreamdb/monitor-service/internal/config"
)

// Database is the connectivity surface checked against SQream.
type Database interface {
	Ping(ctx context.Context) error
	SelectOne(ctx context.Context) error
}

// Sink is the readiness surface checked against Loki.
type Sink interface {
	Ready(ctx context.Context) error
}

// Run performs all startup checkups, retrying each probe with a constant
// backoff so a collaborator that is still coming up does not fail startup.
func Run(ctx context.Context, cfg config.CheckupConfig, db Database, sink Sink, logger *slog.Logger) error {
	logger = logger.With("component", "checkup")
	logger.Info("starting checkups", "attempts", cfg.Attempts, "backoff", cfg.GetBackoff())

	if err := withRetries(ctx, cfg, func(ctx context.Context) error {
		return db.Ping(ctx)
	}, logger, "sqream ping"); err != nil {
		return fmt.Errorf("sqream connectivity checkup failed: %w", err)
	}

	if err := withRetries(ctx, cfg, func(ctx context.Context) error {
		return db.SelectOne(ctx)
	}, logger, "sqream select 1"); err != nil {
		return fmt.Errorf("sqream statement checkup failed: %w", err)
	}
	logger.Info("sqream connection established successfully")

	if err := withRetries(ctx, cfg, func(ctx context.Context) error {
		return sink.Ready(ctx)
	}, logger, "loki ready"); err != nil {
		return fmt.Errorf("loki readiness checkup failed: %w", err)
	}
	logger.Info("loki connection established successfully")

	return nil
}

func withRetries(ctx context.Context, cfg config.CheckupConfig, probe func(context.Context) error, logger *slog.Logger, name string) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(cfg.GetBackoff()))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := probe(ctx); err != nil {
			logger.Warn("checkup probe failed, retrying", "probe", name, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
