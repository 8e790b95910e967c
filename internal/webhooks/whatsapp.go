package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
	"github.com/wolfman30/autolead-ai-platform/internal/channels/whatsapp"
	"github.com/wolfman30/autolead-ai-platform/internal/conversation"
	"github.com/wolfman30/autolead-ai-platform/internal/events"
	"github.com/wolfman30/autolead-ai-platform/internal/messaging"
	observemetrics "github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/internal/tenancy"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// ChannelWhatsApp names the WhatsApp webhook in routes, logs and metrics.
const ChannelWhatsApp = "whatsapp"

// InboundHandler runs a conversation turn for a customer message.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in conversation.InboundMessage) (*conversation.TurnResult, error)
}

// StatusRecorder applies delivery callbacks to stored outbound messages.
type StatusRecorder interface {
	UpdateStatus(ctx context.Context, externalID string, status messaging.DeliveryStatus, errMsg string) (bool, error)
}

// WhatsAppConfig wires a WhatsAppProcessor.
type WhatsAppConfig struct {
	Conversation InboundHandler
	Statuses     StatusRecorder
	Tenants      tenancy.Resolver
	// Dedup is optional; nil processes every message id.
	Dedup   events.Deduper
	Metrics *observemetrics.WebhookMetrics
	Logger  *logging.Logger
}

// WhatsAppProcessor handles "messages" changes: contact profiles, inbound
// customer messages and delivery statuses.
type WhatsAppProcessor struct {
	conv     InboundHandler
	statuses StatusRecorder
	tenants  tenancy.Resolver
	dedup    events.Deduper
	metrics  *observemetrics.WebhookMetrics
	logger   *logging.Logger
}

func NewWhatsAppProcessor(cfg WhatsAppConfig) *WhatsAppProcessor {
	if cfg.Conversation == nil || cfg.Statuses == nil || cfg.Tenants == nil {
		panic("webhooks: whatsapp processor requires conversation, statuses and tenants")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppProcessor{
		conv:     cfg.Conversation,
		statuses: cfg.Statuses,
		tenants:  cfg.Tenants,
		dedup:    cfg.Dedup,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

func (p *WhatsAppProcessor) Process(ctx context.Context, env meta.Envelope) Summary {
	runner := &itemRunner{channel: ChannelWhatsApp, metrics: p.metrics, logger: p.logger}
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != whatsapp.FieldMessages {
				p.logger.Debug("skipping whatsapp change", "field", change.Field)
				continue
			}
			value, err := whatsapp.DecodeValue(change.Value)
			if err != nil {
				runner.run(ctx, "change", func(context.Context) (string, error) { return "", err })
				continue
			}
			p.processValue(ctx, runner, value)
		}
	}
	return runner.summary
}

func (p *WhatsAppProcessor) processValue(ctx context.Context, runner *itemRunner, value whatsapp.MessagesValue) {
	names := value.ProfileNames()
	for _, raw := range value.Contacts {
		runner.run(ctx, "contact", func(context.Context) (string, error) {
			if _, err := whatsapp.DecodeContact(raw); err != nil {
				return "", err
			}
			return outcomeSucceeded, nil
		})
	}
	for _, raw := range value.Messages {
		runner.run(ctx, "message", func(ctx context.Context) (string, error) {
			return p.handleMessage(ctx, value.Metadata.PhoneNumberID, names, raw)
		})
	}
	for _, raw := range value.Statuses {
		runner.run(ctx, "status", p.statusHandler(raw))
	}
}

func (p *WhatsAppProcessor) handleMessage(ctx context.Context, phoneNumberID string, names map[string]string, raw []byte) (outcome string, err error) {
	msg, err := whatsapp.DecodeMessage(raw)
	if err != nil {
		return "", err
	}
	text := msg.Body()
	if text == "" {
		p.logger.Info("ignoring unsupported whatsapp message", "type", msg.Type, "message_id", msg.ID)
		return outcomeSkipped, nil
	}
	phone := messaging.NormalizeE164(msg.From)
	if phone == "" {
		return "", fmt.Errorf("invalid sender %q", msg.From)
	}
	tenantID, err := p.tenants.ResolveTenant(ctx, phoneNumberID)
	if err != nil {
		return "", fmt.Errorf("resolve tenant for %s: %w", phoneNumberID, err)
	}

	if p.dedup != nil {
		fresh, err := p.dedup.MarkProcessed(ctx, ChannelWhatsApp, msg.ID)
		if err != nil {
			return "", fmt.Errorf("dedup claim: %w", err)
		}
		if !fresh {
			p.logger.Info("duplicate whatsapp message", "message_id", msg.ID)
			return outcomeDuplicate, nil
		}
		// Also runs while a panic unwinds, when outcome is still empty.
		defer func() {
			if outcome == "" {
				releaseClaim(ctx, p.dedup, p.logger, ChannelWhatsApp, msg.ID)
			}
		}()
	}

	ctx = tenancy.WithTenantID(ctx, tenantID)
	_, err = p.conv.HandleInbound(ctx, conversation.InboundMessage{
		TenantID:    tenantID,
		Phone:       phone,
		ProfileName: names[msg.From],
		Text:        text,
		ExternalID:  msg.ID,
		SentAt:      msg.SentAt(),
	})
	switch {
	case err == nil:
		return outcomeSucceeded, nil
	case errors.Is(err, conversation.ErrConversationCompleted):
		return outcomeCompleted, nil
	case errors.Is(err, conversation.ErrGenerationFailed):
		// The fallback reply was sent; running the turn again would store the
		// inbound message twice.
		p.logger.Warn("turn answered with fallback", "message_id", msg.ID, "error", err)
		return outcomeSucceeded, nil
	}
	return "", err
}

func (p *WhatsAppProcessor) statusHandler(raw []byte) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		st, err := whatsapp.DecodeStatus(raw)
		if err != nil {
			return "", err
		}
		status, err := messaging.ParseDeliveryStatus(st.Status)
		if err != nil {
			return "", err
		}
		applied, err := p.statuses.UpdateStatus(ctx, st.ID, status, st.ErrorSummary())
		if err != nil {
			return "", err
		}
		if !applied {
			p.logger.Debug("delivery status not applied", "message_id", st.ID, "status", status)
		}
		return outcomeSucceeded, nil
	}
}
