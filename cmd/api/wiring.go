package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/leadads"
	"github.com/wolfman30/autolead-ai-platform/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/conversation"
	"github.com/wolfman30/autolead-ai-platform/internal/events"
	"github.com/wolfman30/autolead-ai-platform/internal/knowledge"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/internal/messaging"
	observemetrics "github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/internal/tenancy"
	"github.com/wolfman30/autolead-ai-platform/internal/webhooks"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

type storeSet struct {
	leads     leads.Repository
	messages  messaging.Store
	knowledge knowledge.Store
	logs      webhooks.LogStore
}

// newStores returns Postgres-backed stores, or in-memory ones when pool is nil.
func newStores(pool *pgxpool.Pool) storeSet {
	if pool == nil {
		return storeSet{
			leads:     leads.NewInMemoryRepository(),
			messages:  messaging.NewMemoryStore(),
			knowledge: knowledge.NewMemoryStore(),
			logs:      webhooks.NewMemoryLogStore(),
		}
	}
	return storeSet{
		leads:     leads.NewPostgresRepository(pool),
		messages:  messaging.NewPostgresStore(pool),
		knowledge: knowledge.NewPostgresStore(pool),
		logs:      webhooks.NewPostgresLogStore(pool),
	}
}

func setupMetrics() (http.Handler, *observemetrics.WebhookMetrics, *observemetrics.ConversationMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, observemetrics.NewWebhookMetrics(registry), observemetrics.NewConversationMetrics(registry)
}

func newRetriever(store knowledge.Store, logger *logging.Logger) *knowledge.Retriever {
	return knowledge.NewRetriever(store, knowledge.DefaultTopK, logger)
}

// newTransport returns the WhatsApp Cloud API client, or nil when the
// channel has no credentials.
func newTransport(cfg *appconfig.Config, logger *logging.Logger) conversation.Transport {
	if strings.TrimSpace(cfg.WhatsAppAccessToken) == "" || strings.TrimSpace(cfg.WhatsAppPhoneNumberID) == "" {
		logger.Warn("whatsapp credentials missing; replies disabled")
		return nil
	}
	return whatsapp.NewClient(cfg.GraphAPIBaseURL, cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
}

func newTenantResolver(cfg *appconfig.Config) (*tenancy.StaticResolver, error) {
	mapping, err := cfg.TenantMap()
	if err != nil {
		return nil, err
	}
	return tenancy.NewStaticResolver(mapping, cfg.DefaultTenantID), nil
}

type webhookDeps struct {
	cfg          *appconfig.Config
	logs         webhooks.LogStore
	conversation webhooks.InboundHandler
	transport    conversation.Transport
	statuses     webhooks.StatusRecorder
	leads        leads.Repository
	tenants      tenancy.Resolver
	dedup        events.Deduper
	metrics      *observemetrics.WebhookMetrics
	logger       *logging.Logger
}

// newWebhookHandler registers a channel only when it can do its work:
// WhatsApp needs outbound credentials and Lead Ads a page token.
func newWebhookHandler(d webhookDeps) *webhooks.Handler {
	var channels []webhooks.Channel
	if d.transport != nil {
		channels = append(channels, webhooks.Channel{
			Name:        webhooks.ChannelWhatsApp,
			VerifyToken: d.cfg.WhatsAppVerifyToken,
			Processor: webhooks.NewWhatsAppProcessor(webhooks.WhatsAppConfig{
				Conversation: d.conversation,
				Statuses:     d.statuses,
				Tenants:      d.tenants,
				Dedup:        d.dedup,
				Metrics:      d.metrics,
				Logger:       d.logger,
			}),
		})
	} else {
		d.logger.Warn("whatsapp webhook not registered")
	}

	if strings.TrimSpace(d.cfg.LeadAdsAccessToken) != "" {
		channels = append(channels, webhooks.Channel{
			Name:        webhooks.ChannelLeadAds,
			VerifyToken: d.cfg.LeadAdsVerifyToken,
			Processor: webhooks.NewLeadAdsProcessor(webhooks.LeadAdsConfig{
				Fetcher: leadads.NewClient(d.cfg.GraphAPIBaseURL, d.cfg.LeadAdsAccessToken),
				Leads:   d.leads,
				Tenants: d.tenants,
				Dedup:   d.dedup,
				Metrics: d.metrics,
				Logger:  d.logger,
			}),
		})
	} else {
		d.logger.Warn("lead ads webhook not registered; LEADADS_ACCESS_TOKEN missing")
	}

	return webhooks.NewHandler(webhooks.HandlerConfig{
		Logs:      d.logs,
		AppSecret: d.cfg.WhatsAppAppSecret,
		Channels:  channels,
		Metrics:   d.metrics,
		Logger:    d.logger,
	})
}

func healthCheck(pool *pgxpool.Pool) func(context.Context) error {
	if pool == nil {
		return nil
	}
	return pool.Ping
}
