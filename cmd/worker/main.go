package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deptattendance/internal/alerts"
	"deptattendance/internal/attendance"
	"deptattendance/internal/config"
	"deptattendance/internal/logging"
	"deptattendance/internal/metrics"
	"deptattendance/internal/queue"
	"deptattendance/internal/store"
)

// Worker consumes attendance.saved messages from Redis and reports students
// whose attendance fell below the at-risk threshold.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		return errors.Errorf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}
	if cfg.StoreBackend == "memory" {
		return errors.New("worker cannot share an in-memory store with the api")
	}

	kv, err := store.Open(ctx, cfg.StoreBackend, store.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		return errors.Wrapf(err, "opening %s store", cfg.StoreBackend)
	}
	defer func() { _ = kv.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx); err != nil {
		return errors.Wrap(err, "connecting to redis")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	att := attendance.NewStore(attendance.NewRepository(kv, cfg.DataKey), attendance.WithObserver(m.ObserveStoreOp))

	// metrics only; the worker has no API
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	watcher := alerts.NewWatcher(att, logger.Named("alerts"), m, cfg.AtRiskBelow)
	logger.Info("worker started, waiting for messages", zap.String("queue", cfg.QueueKey))
	return watcher.Run(ctx, q)
}
