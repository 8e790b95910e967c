package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// LeadReader loads a lead for follow-up reminders.
type LeadReader interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
}

// Service sends manager-facing notifications.
type Service struct {
	email   EmailSender
	manager Sender
	leads   LeadReader
	logger  *logging.Logger
	now     func() time.Time
}

// NewService creates a notification service. A nil email sender or empty
// manager address turns every notification into a logged no-op.
func NewService(email EmailSender, manager Sender, leadsRepo LeadReader, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:   email,
		manager: manager,
		leads:   leadsRepo,
		logger:  logger.Component("notify"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) enabled() bool {
	return s.email != nil && strings.TrimSpace(s.manager.Email) != ""
}

// NotifyEscalation tells the manager a lead is ready for a human.
func (s *Service) NotifyEscalation(ctx context.Context, leadName, conversationLabel string) error {
	if !s.enabled() {
		s.logger.Debug("escalation email skipped, no manager configured", "lead", leadName)
		return nil
	}
	if strings.TrimSpace(leadName) == "" {
		leadName = "Un cliente"
	}
	subject := fmt.Sprintf("Cliente listo para gestionar: %s", leadName)
	body := fmt.Sprintf(`Hola %s,

%s ha completado la cualificación con el asistente y espera contacto de un gestor.

Conversación: %s

Por favor, contacta con el cliente en las próximas 24 horas.`, managerGreeting(s.manager), leadName, conversationLabel)
	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Cliente listo para gestionar</h2>
<p><strong>%s</strong> ha completado la cualificación con el asistente.</p>
<p>Conversación: %s</p>
<p>Por favor, contacta con el cliente en las próximas 24 horas.</p>
</div>`, html.EscapeString(leadName), html.EscapeString(conversationLabel))

	if err := s.email.Send(ctx, EmailMessage{
		To:      s.manager.Email,
		ToName:  s.manager.Name,
		Subject: subject,
		Body:    body,
		HTML:    htmlBody,
	}); err != nil {
		return fmt.Errorf("notify: escalation email: %w", err)
	}
	s.logger.Info("escalation email sent", "lead", leadName, "conversation", conversationLabel)
	return nil
}

// NotifyFollowUpDue reminds the manager about an escalated lead whose
// follow-up date has passed. Leads that moved out of manager or whose date
// was pushed back are skipped.
func (s *Service) NotifyFollowUpDue(ctx context.Context, leadID string) error {
	if s.leads == nil {
		return errors.New("notify: lead reader not configured")
	}
	lead, err := s.leads.GetByID(ctx, leadID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		s.logger.Warn("follow-up for unknown lead dropped", "lead_id", leadID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load lead: %w", err)
	}
	if lead.Status != funnel.StatusManager {
		s.logger.Debug("follow-up skipped, lead moved on", "lead_id", leadID, "status", lead.Status)
		return nil
	}
	if lead.NextFollowUpDate == nil || lead.NextFollowUpDate.After(s.now()) {
		s.logger.Debug("follow-up skipped, not due", "lead_id", leadID)
		return nil
	}
	if !s.enabled() {
		return nil
	}

	name := lead.DisplayName()
	body := fmt.Sprintf(`Hola %s,

Han pasado 24 horas desde que %s pasó a gestión y sigue en estado "%s".

Teléfono: %s
Presupuesto: %s
Plazo de compra: %s`, managerGreeting(s.manager), name, lead.Status, orDash(lead.Phone), orDash(lead.Budget), orDash(lead.ExpectedPurchaseTimeframe))
	if err := s.email.Send(ctx, EmailMessage{
		To:      s.manager.Email,
		ToName:  s.manager.Name,
		Subject: fmt.Sprintf("Seguimiento pendiente: %s", name),
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: follow-up email: %w", err)
	}
	s.logger.Info("follow-up reminder sent", "lead_id", leadID)
	return nil
}

func managerGreeting(m Sender) string {
	if m.Name != "" {
		return m.Name
	}
	return "equipo"
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
