package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/autolead-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/autolead-ai-platform/internal/api/router"
	"github.com/wolfman30/autolead-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/autolead-ai-platform/internal/http/middleware"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting autolead-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	} else {
		defer pool.Close()
	}
	stores := newStores(pool)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	generator, err := mainconfig.NewGenerator(ctx, awsCfg, cfg, logger)
	if err != nil {
		logger.Error("failed to build generator", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsHandler, webhookMetrics, conversationMetrics := setupMetrics()

	email := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	notifier, closeNotifier := bootstrap.BuildDispatcher(cfg, bootstrap.BuildNotifyService(cfg, email, stores.leads, logger), logger)
	defer closeNotifier()

	transport := newTransport(cfg, logger)
	convService := conversation.NewService(conversation.Deps{
		Leads:     stores.leads,
		Messages:  stores.messages,
		Embedder:  mainconfig.NewEmbedder(awsCfg, cfg),
		Retriever: newRetriever(stores.knowledge, logger),
		Generator: generator,
		Transport: transport,
		Notifier:  notifier,
		Events:    conversation.NewEventLogger(logger),
		Metrics:   conversationMetrics,
		Logger:    logger,
	}, conversation.Config{
		HistoryLimit: cfg.ConversationHistoryLen,
		Typing: conversation.TypingConfig{
			PerChar: cfg.TypingDelayPerChar,
			Min:     cfg.TypingDelayMin,
			Max:     cfg.TypingDelayMax,
		},
	})

	tenants, err := newTenantResolver(cfg)
	if err != nil {
		logger.Error("invalid tenant map", "error", err)
		os.Exit(1)
	}
	webhookHandler := newWebhookHandler(webhookDeps{
		cfg:          cfg,
		logs:         stores.logs,
		conversation: convService,
		transport:    transport,
		statuses:     stores.messages,
		leads:        stores.leads,
		tenants:      tenants,
		dedup:        bootstrap.BuildDeduper(cfg, pool, redisClient, logger),
		metrics:      webhookMetrics,
		logger:       logger,
	})

	var limiter *httpmiddleware.RateLimiter
	if cfg.WebhookRateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.WebhookRateLimitRPS, cfg.WebhookRateLimitBurst)
		go limiter.Run(ctx)
	}

	r := router.New(&router.Config{
		Logger:          logger,
		Webhooks:        webhookHandler,
		Console:         conversation.NewHandler(convService, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  metricsHandler,
		RateLimiter:     limiter,
		HealthCheck:     healthCheck(pool),
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	// Deliveries are answered after processing, which includes generation
	// and the typing delay.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
