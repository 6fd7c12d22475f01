package main

import (
	"net"
	"os"
	"time"

	"financeflow/internal/cli"
	apphttp "financeflow/internal/http"
	"financeflow/internal/log"
	"financeflow/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	opts := []services.Option{services.WithLogger(logger)}
	if amqpClient := cli.InitAMQP(logger, cfg, false); amqpClient != nil {
		defer amqpClient.Close()
		opts = append(opts, services.WithPublisher(amqpClient))
	}
	ledger := services.NewLedgerService(repo, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		UserID:             cfg.DefaultUserID,
		TrendMonths:        cfg.TrendMonths,
		CacheTTL:           cfg.CacheTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Error("Failed to listen", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Starting financeflow server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"db", cfg.SQLiteDBPath,
		"user_id", cfg.DefaultUserID)
	// Run returns after in-flight requests drain, before the deferred closes.
	if err := srv.Run(ctx, ln, 30*time.Second); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
