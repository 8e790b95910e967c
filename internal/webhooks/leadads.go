package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/leadads"
	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
	"github.com/wolfman30/autolead-ai-platform/internal/events"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/internal/messaging"
	observemetrics "github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/internal/tenancy"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// ChannelLeadAds names the Facebook Lead Ads webhook.
const ChannelLeadAds = "leadads"

// LeadFetcher loads the answers of a lead form submission.
type LeadFetcher interface {
	FetchLead(ctx context.Context, leadgenID string) (*leadads.LeadDetails, error)
}

// LeadAdsConfig wires a LeadAdsProcessor.
type LeadAdsConfig struct {
	Fetcher LeadFetcher
	Leads   leads.Repository
	Tenants tenancy.Resolver
	Dedup   events.Deduper
	Metrics *observemetrics.WebhookMetrics
	Logger  *logging.Logger
}

// LeadAdsProcessor turns "leadgen" changes into nuevo leads attributed to
// their campaign.
type LeadAdsProcessor struct {
	fetcher LeadFetcher
	leads   leads.Repository
	tenants tenancy.Resolver
	dedup   events.Deduper
	metrics *observemetrics.WebhookMetrics
	logger  *logging.Logger
}

func NewLeadAdsProcessor(cfg LeadAdsConfig) *LeadAdsProcessor {
	if cfg.Fetcher == nil || cfg.Leads == nil || cfg.Tenants == nil {
		panic("webhooks: lead ads processor requires fetcher, leads and tenants")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &LeadAdsProcessor{
		fetcher: cfg.Fetcher,
		leads:   cfg.Leads,
		tenants: cfg.Tenants,
		dedup:   cfg.Dedup,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

func (p *LeadAdsProcessor) Process(ctx context.Context, env meta.Envelope) Summary {
	runner := &itemRunner{channel: ChannelLeadAds, metrics: p.metrics, logger: p.logger}
	for _, entry := range env.Entry {
		pageID := entry.ID
		for _, change := range entry.Changes {
			if change.Field != leadads.FieldLeadgen {
				p.logger.Debug("skipping lead ads change", "field", change.Field)
				continue
			}
			raw := change.Value
			runner.run(ctx, "leadgen", func(ctx context.Context) (string, error) {
				return p.handleLeadgen(ctx, pageID, raw)
			})
		}
	}
	return runner.summary
}

func (p *LeadAdsProcessor) handleLeadgen(ctx context.Context, pageID string, raw []byte) (outcome string, err error) {
	value, err := leadads.DecodeValue(raw)
	if err != nil {
		return "", err
	}
	if value.PageID != "" {
		pageID = value.PageID
	}
	tenantID, err := p.tenants.ResolveTenant(ctx, pageID)
	if err != nil {
		return "", fmt.Errorf("resolve tenant for page %s: %w", pageID, err)
	}

	if p.dedup != nil {
		fresh, err := p.dedup.MarkProcessed(ctx, ChannelLeadAds, value.LeadgenID)
		if err != nil {
			return "", fmt.Errorf("dedup claim: %w", err)
		}
		if !fresh {
			return outcomeDuplicate, nil
		}
		defer func() {
			if outcome == "" {
				releaseClaim(ctx, p.dedup, p.logger, ChannelLeadAds, value.LeadgenID)
			}
		}()
	}
	return p.upsertLead(ctx, tenantID, value.LeadgenID)
}

func (p *LeadAdsProcessor) upsertLead(ctx context.Context, tenantID, leadgenID string) (string, error) {
	details, err := p.fetcher.FetchLead(ctx, leadgenID)
	if err != nil {
		return "", err
	}
	phone := messaging.NormalizeE164(details.Phone())
	email := details.Email()
	if phone == "" && email == "" {
		return "", fmt.Errorf("lead %s has no usable phone or email", leadgenID)
	}

	if phone != "" {
		existing, err := p.leads.GetByPhone(ctx, phone)
		switch {
		case err == nil:
			return p.enrich(ctx, existing, details, email)
		case !errors.Is(err, leads.ErrLeadNotFound):
			return "", err
		}
	}

	name := details.FullName()
	if name == "" {
		name = firstNonEmpty(phone, email)
	}
	lead, err := p.leads.Create(ctx, &leads.CreateLeadRequest{
		TenantID:   tenantID,
		Name:       name,
		Email:      email,
		Phone:      phone,
		Source:     leads.SourceLeadAds,
		CampaignID: details.CampaignID,
	})
	if errors.Is(err, leads.ErrDuplicateContact) {
		p.logger.Info("lead ads contact already registered", "leadgen_id", leadgenID)
		return outcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	p.logger.Info("lead created from lead ads", "lead_id", lead.ID, "tenant_id", tenantID, "campaign_id", details.CampaignID)
	return outcomeSucceeded, nil
}

// enrich fills the fields a WhatsApp-first lead is missing. Status is left
// alone.
func (p *LeadAdsProcessor) enrich(ctx context.Context, lead *leads.Lead, details *leadads.LeadDetails, email string) (string, error) {
	changed := false
	if lead.CampaignID == "" && details.CampaignID != "" {
		lead.CampaignID = details.CampaignID
		changed = true
	}
	if name := details.FullName(); name != "" && (lead.Name == "" || lead.Name == lead.Phone) {
		lead.Name = name
		changed = true
	}
	if lead.Email == "" && email != "" {
		lead.Email = email
		changed = true
	}
	if !changed {
		return outcomeDuplicate, nil
	}
	if err := p.leads.Update(ctx, lead); err != nil {
		return "", fmt.Errorf("enrich lead %s: %w", lead.ID, err)
	}
	p.logger.Info("lead enriched from lead ads", "lead_id", lead.ID, "campaign_id", lead.CampaignID)
	return outcomeSucceeded, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
