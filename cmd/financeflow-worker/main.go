package main

import (
	"context"
	"errors"
	"os"

	"financeflow/internal/cli"
	"financeflow/internal/log"
	"financeflow/internal/services"
	"financeflow/internal/sheets"
	gsheet "financeflow/internal/sheets/google"
	"financeflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentWorker, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger.Info("Starting financeflow-worker", log.FieldOperation, log.OpStartup)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	ledger := services.NewLedgerService(repo, services.WithLogger(logger))

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	var appender sheets.TransactionAppender
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client",
				log.FieldError, err,
				log.FieldErrorType, log.ErrorTypeConfiguration)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets sync enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		logger.Info("Google Sheets sync disabled, no GOOGLE_SPREADSHEET_ID provided")
	}
	if cfg.ReportsDir == "" {
		logger.Info("Chart snapshots disabled, no REPORTS_DIR provided")
	}

	w := worker.NewReportWorker(ledger, appender, cfg.ReportsDir, cfg.TrendMonths, logger)

	// snapshots may be missing or stale after downtime
	if err := w.RefreshSnapshots(ctx, cfg.DefaultUserID); err != nil {
		logger.Error("Startup snapshot refresh failed", log.FieldError, err)
	}

	amqpClient := cli.InitAMQP(logger, cfg, true)
	defer amqpClient.Close()

	err := amqpClient.ConsumeWithReconnect(ctx, w.HandleTransactionEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	stats := w.Stats()
	logger.Info("Worker stopped",
		log.FieldOperation, log.OpShutdown,
		"processed", stats.Processed,
		"synced", stats.Synced,
		"failed", stats.Failed)
}
