// Package cli holds the start-up steps shared by the financeflow binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"financeflow/internal/amqp"
	"financeflow/internal/config"
	"financeflow/internal/log"
	"financeflow/internal/storage"

	"github.com/joho/godotenv"
)

// SetupLogger builds the process logger at the given level and installs it as
// the slog default, so packages logging through slog share its handler.
func SetupLogger(component, level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development; a missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits the process when it is invalid.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens (and if needed creates) the ledger database or exits.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			"path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAMQP connects to the broker when one is configured. It returns nil when
// AMQP is disabled or unreachable and required is false.
func InitAMQP(logger *log.Logger, cfg *config.Config, required bool) *amqp.Client {
	if cfg.AMQPURL == "" {
		if required {
			logger.Error("AMQP_URL is required", log.FieldErrorType, log.ErrorTypeConfiguration)
			os.Exit(1)
		}
		logger.Info("AMQP disabled, transaction events will not be published")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		if required {
			logger.Error("Failed to connect to AMQP", log.FieldError, err, log.FieldErrorType, log.ErrorTypeNetwork)
			os.Exit(1)
		}
		logger.Warn("AMQP unavailable, continuing without events", log.FieldError, err)
		return nil
	}
	logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
	}()
	return ctx, stop
}
