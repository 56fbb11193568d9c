// Package database
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqreamdb/monitor-service/internal/config"
)

// Row is one row of a utility function result. Column names are kept in
// result order; Values[i] belongs to Columns[i].
type Row struct {
	Columns []string
	Values  []any
}

// QueryResult is the raw outcome of one poll: zero or more rows as returned
// by the server. It is owned by the poll cycle that requested it.
type QueryResult struct {
	Rows []Row
}

// Querier is the query capability consumed by the poll tasks. Execute runs
// the utility function for the given metric name and returns its rows.
// Implementations must be safe for concurrent use.
type Querier interface {
	Execute(ctx context.Context, metricName string) (QueryResult, error)
}

// Pool wraps a pgx connection pool and executes metric utility functions
// of the form `select <metric_name>();`.
type Pool struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Connect opens a connection pool against the SQream coordinator and
// verifies it with a ping.
func Connect(ctx context.Context, cfg *config.SqreamConfig, logger *slog.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Pool{
		pool:         pool,
		queryTimeout: cfg.GetQueryTimeout(),
		logger:       logger.With("component", "database"),
	}, nil
}

// Execute runs `select <metricName>();` and collects the full result set.
// Column names are sanitized (spaces to underscores) because Loki rejects
// JSON keys containing spaces.
func (p *Pool) Execute(ctx context.Context, metricName string) (QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	statement := fmt.Sprintf("select %s();", metricName)
	rows, err := p.pool.Query(ctx, statement)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query %q failed: %w", statement, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = sanitizeColumnName(string(fd.Name))
	}

	var result QueryResult
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return QueryResult{}, fmt.Errorf("failed to read row for %q: %w", metricName, err)
		}
		result.Rows = append(result.Rows, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("query %q failed: %w", statement, err)
	}

	p.logger.Debug("query executed", "metric", metricName, "rows", len(result.Rows))
	return result, nil
}

// Ping verifies connectivity to the server.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// SelectOne runs `select 1` as a cheap end-to-end statement check.
func (p *Pool) SelectOne(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	var one int
	if err := p.pool.QueryRow(ctx, "select 1").Scan(&one); err != nil {
		return fmt.Errorf("select 1 failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Pool) Close() {
	p.pool.Close()
}

func sanitizeColumnName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}
