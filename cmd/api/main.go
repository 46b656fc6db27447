package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"deptattendance/internal/alerts"
	"deptattendance/internal/attendance"
	"deptattendance/internal/auth"
	"deptattendance/internal/config"
	"deptattendance/internal/httpapi"
	"deptattendance/internal/httpmiddleware"
	"deptattendance/internal/logging"
	"deptattendance/internal/metrics"
	"deptattendance/internal/queue"
	"deptattendance/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, cfg.StoreBackend, store.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		return errors.Wrapf(err, "opening %s store", cfg.StoreBackend)
	}
	defer func() { _ = kv.Close() }()

	m := metrics.New(prometheus.DefaultRegisterer)
	att := attendance.NewStore(attendance.NewRepository(kv, cfg.DataKey), attendance.WithObserver(m.ObserveStoreOp))
	if err := att.Init(ctx, cfg.SeedDemo); err != nil {
		return errors.Wrap(err, "initialising document")
	}

	var redisClient *redis.Client
	if cfg.QueueBackend == "redis" || cfg.StoreBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr).Client
		defer func() { _ = redisClient.Close() }()
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient, cfg.QueueKey)
	} else {
		mem := queue.NewInMemory(64)
		q = mem
		watcher := alerts.NewWatcher(att, logger.Named("alerts"), m, cfg.AtRiskBelow)
		go func() { _ = watcher.Run(ctx, mem) }()
	}

	var deny auth.Denylist = auth.NewMemoryDenylist()
	if redisClient != nil {
		deny = auth.NewRedisDenylist(redisClient, "")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLog(logger.Named("http"), "/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics(m))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).RateLimit())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := httpapi.New(att, q, deny, logger, httpapi.Config{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		SessionTTL: cfg.SessionTTL,
	})
	api.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("queue", cfg.QueueBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "forced shutdown")
	}

	logger.Info("server exited")
	return nil
}
