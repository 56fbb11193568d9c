package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqreamdb/monitor-service/internal/api"
	"github.com/sqreamdb/monitor-service/internal/checkup"
	"github.com/sqreamdb/monitor-service/internal/config"
	"github.com/sqreamdb/monitor-service/internal/database"
	"github.com/sqreamdb/monitor-service/internal/loki"
	"github.com/sqreamdb/monitor-service/internal/poller"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg.Logging)
	logger.Info("Starting SQream monitor service",
		"metrics", len(cfg.Metrics),
		"sqream", fmt.Sprintf("%s:%d", cfg.Sqream.Host, cfg.Sqream.Port),
		"loki", cfg.Loki.GetPushURL(),
	)

	// Build and validate metric specs before touching the network
	specs, err := poller.BuildSpecs(cfg.Metrics)
	if err != nil {
		log.Fatalf("Metric validation failed: %v", err)
	}
	logger.Info("All metrics are validated and allowed", "count", len(specs))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the shared query handle
	pool, err := database.Connect(ctx, &cfg.Sqream, logger)
	if err != nil {
		log.Fatalf("SQream connection failed: %v", err)
	}
	defer pool.Close()

	// Loki sink client
	sink := loki.NewClient(&cfg.Loki, logger)

	// Startup checkups: fail the process before any task starts
	if err := checkup.Run(ctx, cfg.Checkup, pool, sink, logger); err != nil {
		log.Fatalf("Startup checkups failed: %v", err)
	}

	// Launch one poll task per metric
	scheduler := poller.NewScheduler(pool, sink, logger)
	if err := scheduler.Start(ctx, specs); err != nil {
		log.Fatalf("Scheduler start failed: %v", err)
	}

	// Status API
	var srv *http.Server
	if cfg.Server.Enabled {
		srv = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      api.NewRouter(scheduler, logger),
			ReadTimeout:  cfg.Server.GetReadTimeout(),
			WriteTimeout: cfg.Server.GetWriteTimeout(),
		}
		go func() {
			logger.Info("Status API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status API failed", "error", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down monitor service...")

	// Cancel the main context to signal all poll tasks to stop
	cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("All poll tasks stopped")
	case <-time.After(shutdownGracePeriod):
		logger.Error("Poll tasks did not stop within grace period", "grace_period", shutdownGracePeriod)
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Status API forced to shutdown", "error", err)
		}
	}

	logger.Info("Monitor service stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Set format
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
