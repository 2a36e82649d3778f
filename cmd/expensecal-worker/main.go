package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensecal/internal/amqp"
	"expensecal/internal/cli"
	"expensecal/internal/config"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
	gsheet "expensecal/internal/sheets/google"
	"expensecal/internal/storage"
	"expensecal/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig(applog.ComponentWorker)
	logger.Info("Starting expensecal-worker")

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	if !cfg.HasGoogle() {
		logger.Error("Sync worker needs GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}
	sheetsClient, err := gsheet.New(context.Background(), googleConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, sheetsClient, cfg.SyncBatchSize)
	poller := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("No AMQP_URL set, relying on polling only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := poller.Stop(ctx); err != nil {
			logger.Error("Sync processor stop error", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
	})

	if err := sheetsClient.EnsureHeader(ctx); err != nil {
		// Not fatal: appends still work without a header row.
		logger.Warn("Failed to write sheet header", applog.FieldError, err)
	}

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", applog.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.Consume(ctx, syncWorker.Handlers())
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

func googleConfig(cfg *config.Config) gsheet.Config {
	g := cfg.Google
	return gsheet.Config{
		SpreadsheetID:      g.SpreadsheetID,
		SheetName:          g.SheetName,
		ServiceAccountJSON: g.ServiceAccountJSON,
		ServiceAccountFile: g.ServiceAccountFile,
		OAuthClientJSON:    g.OAuthClientJSON,
		OAuthClientFile:    g.OAuthClientFile,
		OAuthTokenFile:     g.OAuthTokenFile,
	}
}
