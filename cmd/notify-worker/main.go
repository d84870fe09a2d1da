package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cuzdan/internal/cache"
	"cuzdan/internal/cli"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
	"cuzdan/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting notify-worker")

	amqpClient := cli.InitAMQP(logger, cfg, true)

	seen := cache.NewLRUCache[struct{}](10000, 48*time.Hour)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(seen)
	cacheManager.StartCleanup(10 * time.Minute)

	notifyWorker := worker.NewNotifyWorker(worker.LogNotifier{Logger: logger}, seen, metrics.New(), logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		cacheManager.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
	})

	go func() {
		if err := amqpClient.ConsumeReminders(ctx, notifyWorker.HandleReminder); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Reminder consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Notify worker stopped")
}
