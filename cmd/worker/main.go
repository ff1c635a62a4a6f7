// Package main runs the background worker: sponsor logo imports and expired session cleanup.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/slotmarket/backend/config"
	"github.com/slotmarket/backend/internal/auth"
	"github.com/slotmarket/backend/internal/sponsors"
	"github.com/slotmarket/backend/internal/worker"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/metrics"
	"github.com/slotmarket/backend/pkg/queue"
	"github.com/slotmarket/backend/pkg/redis"
	"github.com/slotmarket/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		AssetsBucket:    cfg.AWS.AssetsBucket,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	m := metrics.New("slotmarket_worker")
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewLogoProcessor(sponsors.NewRepository(pool), s3Client, jobQueue, m, cfg.Worker.MaxLogoBytes, logger)
	sweeper := worker.NewSessionSweeper(auth.NewRepository(pool), cfg.Worker.SessionSweepInterval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)

	// Worker metrics only; the API server exposes its own /metrics.
	metricsSrv := &http.Server{Addr: ":" + cfg.Worker.MetricsPort, Handler: m.Handler(), ReadTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener", zap.Error(err))
		}
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}
	logger, _ := config.Build()
	return logger
}
