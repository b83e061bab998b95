// Package main runs the background worker: the overdue-issue reminder
// scheduler and the reminder email processor.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trackhive/backend/config"
	"github.com/trackhive/backend/internal/reminders"
	"github.com/trackhive/backend/pkg/database"
	"github.com/trackhive/backend/pkg/queue"
	"github.com/trackhive/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

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

	repo := reminders.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	interval := time.Duration(cfg.Reminders.ScanIntervalHours) * time.Hour
	scheduler := reminders.NewScheduler(repo, jobQueue, interval, logger)
	processor := reminders.NewProcessor(jobQueue, repo, nil, cfg.Reminders.FromAddress, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Run(workerCtx)
	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
