package main

import (
	"context"

	"cuzdan/internal/cli"
	"cuzdan/internal/log"
	"cuzdan/internal/metrics"
	"cuzdan/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentReminder)
	logger.Info("Starting reminder-worker")

	backendResult := cli.InitStore(context.Background(), logger, cfg)

	var publisher services.ReminderPublisher = services.LogPublisher{Logger: logger}
	amqpClient := cli.InitAMQP(logger, cfg, false)
	if amqpClient != nil {
		publisher = amqpClient
	}

	processor := services.NewReminderProcessor(backendResult.Store, publisher, metrics.New(), logger, services.ReminderProcessorConfig{
		Interval: cfg.ReminderInterval,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Reminder processor stop error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
		if backendResult.Cleanup != nil {
			if err := backendResult.Cleanup(); err != nil {
				logger.Error("Store cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Reminder processor configured",
		"interval", cfg.ReminderInterval,
		"backend", cfg.DataBackend)

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reminder processor", log.FieldError, err)
		return
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder worker stopped")
}
