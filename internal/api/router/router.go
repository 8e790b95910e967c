package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/autolead-ai-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/autolead-ai-platform/internal/http/middleware"
	"github.com/wolfman30/autolead-ai-platform/internal/webhooks"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

const healthTimeout = 2 * time.Second

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Webhooks        *webhooks.Handler
	Console         *conversation.Handler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	// RateLimiter throttles the public webhook routes when set.
	RateLimiter *httpmiddleware.RateLimiter
	// HealthCheck reports dependency readiness; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhooks != nil {
		r.Route("/webhooks/{channel}", func(hooks chi.Router) {
			hooks.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			hooks.Get("/", cfg.Webhooks.Verify)
			hooks.Post("/", cfg.Webhooks.Receive)
		})
	}

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.Console != nil {
				admin.Post("/leads/{leadID}/test-messages", cfg.Console.TestMessage)
			}
			if cfg.Webhooks != nil {
				admin.Post("/webhooks/logs/{logID}/replay", cfg.Webhooks.Replay)
			}
		})
	}

	return r
}

func health(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
