package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	mem "fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

func main() {
	cfg, logger := cli.MustLoad(log.ComponentWorker)
	logger.Info("Starting fintrack-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}
	if cfg.StorageBackend != "sqlite" {
		logger.Error("The worker reads the server's SQLite blobs, set STORAGE_BACKEND=sqlite",
			"storage", cfg.StorageBackend)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, log.FieldPath, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var mirror sheets.LedgerMirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background(), logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = mem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring into memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mw := worker.NewMirrorWorker(repo, mirror, logger)

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		wg.Wait()
	})

	logger.Info("Performing startup sync check...")
	if err := mw.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		err := amqpClient.ConsumeRecordChanges(ctx, mw.HandleRecordChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()
	go func() {
		defer wg.Done()
		mw.RunPeriodic(ctx, cfg.SyncInterval)
	}()

	<-done
	logger.Info("Worker stopped")
}
