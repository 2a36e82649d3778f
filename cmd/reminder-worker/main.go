package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"expensecal/internal/amqp"
	"expensecal/internal/cli"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(applog.ComponentReminder)
	logger.Info("Starting reminder-worker",
		"schedule", cfg.ReminderCron,
		"lookahead_days", cfg.ReminderLookaheadDays)

	res := cli.InitBackend(context.Background(), logger, cfg)

	// publisher stays a nil interface without a broker, so reminders are
	// only logged.
	var publisher services.DuePublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPReminderQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		amqpClient, publisher = c, c
	}

	processor := services.NewReminderProcessor(res.Store, publisher, services.DefaultLeadTimes(cfg.ReminderLookaheadDays))

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	run := func() {
		if _, err := processor.ProcessDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
			logger.Error("Reminder run failed", applog.FieldError, err)
		}
	}

	if _, err := scheduler.AddFunc(cfg.ReminderCron, run); err != nil {
		logger.Error("Invalid reminder schedule", applog.FieldError, err, "schedule", cfg.ReminderCron)
		os.Exit(1)
	}

	// Catch up on anything that became due while the worker was down.
	run()
	scheduler.Start()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder worker stopped")
}
