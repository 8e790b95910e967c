package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/autolead-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/autolead-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/internal/notify"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

const workerConcurrency = 5

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisAddr == "" || cfg.DatabaseURL == "" {
		logger.Error("notification worker requires REDIS_ADDR and DATABASE_URL")
		os.Exit(1)
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	email := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	svc := bootstrap.BuildNotifyService(cfg, email, leads.NewPostgresRepository(pool), logger)
	worker := notify.NewWorker(
		notify.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTLS),
		cfg.AsynqQueue,
		workerConcurrency,
		svc,
		logger,
	)

	logger.Info("notification worker started", "queue", cfg.AsynqQueue)
	// Run installs its own signal handling and returns after a graceful stop.
	if err := worker.Run(); err != nil {
		logger.Error("notification worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("notification worker shut down")
}
