// Package conversation runs one qualification turn per inbound customer
// message: persistence, retrieval, generation, update extraction, funnel
// transition, delivery and escalation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
	"github.com/wolfman30/autolead-ai-platform/internal/knowledge"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/internal/llm"
	"github.com/wolfman30/autolead-ai-platform/internal/messaging"
	"github.com/wolfman30/autolead-ai-platform/internal/notify"
	"github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// DefaultHistoryLimit is how many prior messages are sent to the model.
const DefaultHistoryLimit = 10

// Transport delivers replies to the customer's messaging app.
type Transport interface {
	SendText(ctx context.Context, to, body string) (string, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Retriever finds grounding for a query vector.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID string, query []float32) (knowledge.Grounding, error)
}

// InboundMessage is a customer message decoded from a channel webhook.
type InboundMessage struct {
	TenantID    string
	Phone       string
	ProfileName string
	Text        string
	ExternalID  string
	SentAt      *time.Time
}

// TurnResult describes what a turn did.
type TurnResult struct {
	LeadID         string        `json:"lead_id"`
	Reply          string        `json:"reply,omitempty"`
	PreviousStatus funnel.Status `json:"previous_status"`
	Status         funnel.Status `json:"status"`
	Escalated      bool          `json:"escalated"`
	Delivered      bool          `json:"delivered"`
	ExternalID     string        `json:"external_id,omitempty"`
}

// Config tunes a Service.
type Config struct {
	HistoryLimit int
	Typing       TypingConfig
}

// Deps are the collaborators of a Service. Transport and Notifier may be
// nil: the console needs no transport and escalation is then only logged.
type Deps struct {
	Leads     leads.Repository
	Messages  messaging.Store
	Embedder  llm.Embedder
	Retriever Retriever
	Generator llm.Generator
	Transport Transport
	Notifier  notify.Dispatcher
	Events    *EventLogger
	Metrics   *metrics.ConversationMetrics
	Logger    *logging.Logger
}

// Service is the conversation orchestrator.
type Service struct {
	leads     leads.Repository
	messages  messaging.Store
	embedder  llm.Embedder
	retriever Retriever
	generator llm.Generator
	transport Transport
	notifier  notify.Dispatcher
	events    *EventLogger
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	tracer    trace.Tracer

	historyLimit int
	typing       TypingConfig
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Leads == nil || deps.Messages == nil || deps.Generator == nil {
		panic("conversation: leads, messages and generator are required")
	}
	if deps.Embedder == nil || deps.Retriever == nil {
		panic("conversation: embedder and retriever are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	events := deps.Events
	if events == nil {
		events = NewEventLogger(logger)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Typing == (TypingConfig{}) {
		cfg.Typing = DefaultTyping
	}
	return &Service{
		leads:        deps.Leads,
		messages:     deps.Messages,
		embedder:     deps.Embedder,
		retriever:    deps.Retriever,
		generator:    deps.Generator,
		transport:    deps.Transport,
		notifier:     deps.Notifier,
		events:       events,
		metrics:      deps.Metrics,
		logger:       logger.Component("conversation"),
		tracer:       otel.Tracer("autolead.conversation"),
		historyLimit: cfg.HistoryLimit,
		typing:       cfg.Typing,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepContext,
	}
}

// HandleInbound runs a full turn for a WhatsApp message, replying through
// the transport.
func (s *Service) HandleInbound(ctx context.Context, in InboundMessage) (*TurnResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyMessage
	}
	if s.transport == nil {
		return nil, errors.New("conversation: transport not configured")
	}
	lead, created, err := s.leads.GetOrCreateByPhone(ctx, in.TenantID, in.Phone, in.ProfileName, leads.SourceWhatsApp)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve lead: %w", err)
	}
	s.events.MessageReceived(ctx, lead.TenantID, lead.ID, in.Text, created)
	return s.runTurn(ctx, lead, turnInput{
		text:       in.Text,
		externalID: in.ExternalID,
		sentAt:     in.SentAt,
		label:      "WhatsApp " + lead.Phone,
	}, transportDelivery{s: s, to: lead.Phone})
}

// HandleConsoleMessage runs the same pipeline for an operator test message.
// No transport call is made and the outbound message has no external id.
func (s *Service) HandleConsoleMessage(ctx context.Context, leadID, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	s.events.MessageReceived(ctx, lead.TenantID, lead.ID, text, false)
	return s.runTurn(ctx, lead, turnInput{text: text, label: "Consola " + lead.ID}, consoleDelivery{})
}

type turnInput struct {
	text       string
	externalID string
	sentAt     *time.Time
	label      string
}

// delivery abstracts how a reply reaches the customer.
type delivery interface {
	markRead(ctx context.Context, externalID string)
	send(ctx context.Context, reply string) (externalID string, err error)
}

type transportDelivery struct {
	s  *Service
	to string
}

func (d transportDelivery) markRead(ctx context.Context, externalID string) {
	if externalID == "" {
		return
	}
	if err := d.s.transport.MarkRead(ctx, externalID); err != nil {
		d.s.logger.Warn("mark read failed", "external_id", externalID, "error", err)
	}
}

func (d transportDelivery) send(ctx context.Context, reply string) (string, error) {
	if err := d.s.sleep(ctx, d.s.typing.Delay(reply)); err != nil {
		return "", err
	}
	return d.s.transport.SendText(ctx, d.to, reply)
}

type consoleDelivery struct{}

func (consoleDelivery) markRead(context.Context, string) {}

func (consoleDelivery) send(context.Context, string) (string, error) { return "", nil }

func (s *Service) runTurn(ctx context.Context, lead *leads.Lead, in turnInput, out delivery) (_ *TurnResult, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("tenant_id", lead.TenantID),
		attribute.String("lead_id", lead.ID),
		attribute.String("status", lead.Status.String()),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrConversationCompleted) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	now := s.now()
	touch := func(l *leads.Lead) { l.LastMessageAt = &now }
	result := &TurnResult{LeadID: lead.ID, PreviousStatus: lead.Status, Status: lead.Status}

	vector, embedErr := s.embedder.Embed(ctx, in.text)
	if embedErr == nil && len(vector) == 0 {
		embedErr = errors.New("empty embedding")
	}
	if embedErr != nil {
		vector = nil
		s.logger.Warn("embedding failed", "lead_id", lead.ID, "error", embedErr)
	}
	inbound := &messaging.Message{
		LeadID:     lead.ID,
		Direction:  messaging.DirectionInbound,
		Content:    in.text,
		ExternalID: in.externalID,
		Status:     messaging.StatusReceived,
		Embedding:  vector,
		SentAt:     in.sentAt,
	}
	if err := s.messages.Insert(ctx, inbound); err != nil {
		return nil, fmt.Errorf("conversation: persist inbound: %w", err)
	}
	out.markRead(ctx, in.externalID)

	if lead.Status.IsBotTerminal() {
		if _, err := s.saveLead(ctx, lead, touch); err != nil {
			s.logger.Error("failed to stamp last message", "lead_id", lead.ID, "error", err)
		}
		s.events.ConversationCompleted(ctx, lead.TenantID, lead.ID, lead.Status.String())
		s.metrics.ObserveTurn("completed")
		return result, ErrConversationCompleted
	}

	history, err := s.history(ctx, lead.ID, inbound.ID)
	if err != nil {
		s.logger.Warn("history unavailable", "lead_id", lead.ID, "error", err)
	}

	var grounding knowledge.Grounding
	if vector == nil {
		s.events.GroundingSkipped(ctx, lead.TenantID, lead.ID, embedErr)
	} else if grounding, err = s.retriever.Retrieve(ctx, lead.TenantID, vector); err != nil {
		s.events.GroundingSkipped(ctx, lead.TenantID, lead.ID, err)
	}
	contextBlock := knowledge.Compose(grounding, leadState(lead))

	started := time.Now()
	raw, genErr := s.generator.Generate(ctx, SystemPrompt(), contextBlock, history, in.text)
	s.metrics.ObserveGeneration(time.Since(started).Seconds())
	if genErr != nil {
		return s.fallback(ctx, lead, in, out, result, touch, genErr)
	}

	ext := ExtractUpdate(raw)
	if ext.Structured != nil {
		s.events.UpdateExtracted(ctx, lead.TenantID, lead.ID, ext.Structured)
	}
	upd := ext.Structured.FunnelUpdate()
	shouldEscalate := ext.Structured != nil && ext.Structured.Completed

	var transition funnel.Transition
	handedOff := false
	saved, saveErr := s.saveLead(ctx, lead, func(l *leads.Lead) {
		touch(l)
		transition = funnel.Transition{}
		// A conflict retry can reload a lead that left the bot funnel
		// meanwhile; only the timestamp is written then.
		if handedOff = l.Status.IsBotTerminal(); handedOff {
			return
		}
		l.ApplyAttributes(upd)
		transition = funnel.Apply(l.Status, upd, shouldEscalate, now)
		l.ApplyTransition(transition)
	})
	if saveErr == nil && handedOff {
		result.PreviousStatus = saved.Status
		result.Status = saved.Status
		s.events.ConversationCompleted(ctx, lead.TenantID, lead.ID, saved.Status.String())
		s.metrics.ObserveTurn("completed")
		return result, ErrConversationCompleted
	}
	if saveErr != nil {
		// The reply still goes out; the update is lost for this turn.
		s.logger.Error("failed to persist lead update", "lead_id", lead.ID, "error", saveErr)
		transition = funnel.Transition{}
	} else {
		result.PreviousStatus = transition.Previous
		result.Status = saved.Status
		if transition.Changed() {
			s.events.StatusChanged(ctx, lead.TenantID, lead.ID, transition.Previous.String(), transition.Next.String())
			s.metrics.ObserveTransition(transition.Previous.String(), transition.Next.String())
		}
	}

	result.Reply = ext.Reply
	if ext.Reply == "" {
		s.logger.Warn("generated reply was empty after extraction", "lead_id", lead.ID)
	} else if s.deliver(ctx, lead, out, ext.Reply, result) {
		s.metrics.ObserveTurn("replied")
	} else {
		s.metrics.ObserveTurn("transport_failed")
	}

	if transition.Escalated {
		result.Escalated = true
		s.escalate(ctx, saved, in.label, *transition.FollowUpAt)
	}
	return result, nil
}

// fallback sends the static apology and skips extraction and the funnel.
func (s *Service) fallback(ctx context.Context, lead *leads.Lead, in turnInput, out delivery, result *TurnResult, touch func(*leads.Lead), genErr error) (*TurnResult, error) {
	s.events.GenerationFailed(ctx, lead.TenantID, lead.ID, genErr)
	s.metrics.ObserveTurn("generation_failed")
	if _, err := s.saveLead(ctx, lead, touch); err != nil {
		s.logger.Error("failed to stamp last message", "lead_id", lead.ID, "error", err)
	}
	result.Reply = FallbackReply
	s.deliver(ctx, lead, out, FallbackReply, result)
	return result, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
}

// deliver sends reply and persists the outbound message only on success.
func (s *Service) deliver(ctx context.Context, lead *leads.Lead, out delivery, reply string, result *TurnResult) bool {
	externalID, err := out.send(ctx, reply)
	if err != nil {
		s.events.TransportFailed(ctx, lead.TenantID, lead.ID, err)
		return false
	}
	sentAt := s.now()
	msg := &messaging.Message{
		LeadID:     lead.ID,
		Direction:  messaging.DirectionOutbound,
		Content:    reply,
		ExternalID: externalID,
		Status:     messaging.StatusSent,
		SentAt:     &sentAt,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		s.logger.Error("failed to persist outbound message", "lead_id", lead.ID, "external_id", externalID, "error", err)
	}
	result.Delivered = true
	result.ExternalID = externalID
	return true
}

func (s *Service) escalate(ctx context.Context, lead *leads.Lead, label string, followUpAt time.Time) {
	s.events.LeadEscalated(ctx, lead.TenantID, lead.ID, followUpAt)
	s.metrics.ObserveEscalation()
	if s.notifier == nil {
		s.logger.Warn("no notifier configured, escalation not dispatched", "lead_id", lead.ID)
		return
	}
	if err := s.notifier.DispatchEscalation(ctx, notify.EscalationNotice{
		TenantID:          lead.TenantID,
		LeadID:            lead.ID,
		LeadName:          lead.DisplayName(),
		ConversationLabel: label,
	}); err != nil {
		s.logger.Error("escalation dispatch failed", "lead_id", lead.ID, "error", err)
	}
	if err := s.notifier.ScheduleFollowUp(ctx, notify.FollowUpReminder{
		TenantID: lead.TenantID,
		LeadID:   lead.ID,
		DueAt:    followUpAt,
	}); err != nil {
		s.logger.Error("follow-up scheduling failed", "lead_id", lead.ID, "error", err)
	}
}

// saveLead applies mutate and writes the lead. On a version conflict the
// lead is reloaded and mutate re-applied once.
func (s *Service) saveLead(ctx context.Context, lead *leads.Lead, mutate func(*leads.Lead)) (*leads.Lead, error) {
	working := lead.Clone()
	mutate(working)
	err := s.leads.Update(ctx, working)
	if err == nil {
		return working, nil
	}
	if !errors.Is(err, leads.ErrVersionConflict) {
		return nil, err
	}
	s.logger.Info("lead version conflict, retrying", "lead_id", lead.ID)
	fresh, err := s.leads.GetByID(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	mutate(fresh)
	if err := s.leads.Update(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// history returns up to historyLimit prior messages, oldest first, without
// the message being answered.
func (s *Service) history(ctx context.Context, leadID, excludeID string) ([]llm.ChatMessage, error) {
	recent, err := s.messages.Recent(ctx, leadID, s.historyLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]llm.ChatMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID == excludeID {
			continue
		}
		role := llm.ChatRoleUser
		if m.Direction == messaging.DirectionOutbound {
			role = llm.ChatRoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: m.Content})
	}
	if len(out) > s.historyLimit {
		out = out[len(out)-s.historyLimit:]
	}
	return out, nil
}

func leadState(l *leads.Lead) knowledge.LeadState {
	return knowledge.LeadState{
		Name:                      l.Name,
		Status:                    l.Status.String(),
		Budget:                    l.Budget,
		ExpectedPurchaseTimeframe: l.ExpectedPurchaseTimeframe,
		Type:                      l.Type,
	}
}
