package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// Event is one structured decision point of a turn.
type Event struct {
	Time     string         `json:"time"`
	Event    string         `json:"event"`
	TenantID string         `json:"tenant_id"`
	LeadID   string         `json:"lead_id"`
	Data     map[string]any `json:"data,omitempty"`
}

// EventLogger emits one JSON line per decision point so a conversation can
// be followed with grep:
//
//	grep '"event":"status_changed"' /var/log/app.log
//	grep '"lead_id":"6f1c..."' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (e *EventLogger) Log(_ context.Context, event, tenantID, leadID string, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	b, _ := json.Marshal(Event{
		Time:     time.Now().UTC().Format(time.RFC3339Nano),
		Event:    event,
		TenantID: tenantID,
		LeadID:   leadID,
		Data:     data,
	})
	e.logger.Info(string(b))
}

func (e *EventLogger) MessageReceived(ctx context.Context, tenantID, leadID, message string, newLead bool) {
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	e.Log(ctx, "message_received", tenantID, leadID, map[string]any{"message": message, "new_lead": newLead})
}

func (e *EventLogger) GroundingSkipped(ctx context.Context, tenantID, leadID string, err error) {
	e.Log(ctx, "grounding_skipped", tenantID, leadID, map[string]any{"error": err.Error()})
}

func (e *EventLogger) GenerationFailed(ctx context.Context, tenantID, leadID string, err error) {
	e.Log(ctx, "generation_failed", tenantID, leadID, map[string]any{"error": err.Error()})
}

func (e *EventLogger) UpdateExtracted(ctx context.Context, tenantID, leadID string, u *StructuredUpdate) {
	data := map[string]any{"completed": u.Completed}
	if u.Status != nil {
		data["status"] = u.Status.String()
	}
	for k, v := range map[string]*string{"budget": u.Budget, "expected_purchase_timeframe": u.ExpectedPurchaseTimeframe, "type": u.Type, "name": u.Name} {
		if v != nil {
			data[k] = *v
		}
	}
	e.Log(ctx, "update_extracted", tenantID, leadID, data)
}

func (e *EventLogger) StatusChanged(ctx context.Context, tenantID, leadID, from, to string) {
	e.Log(ctx, "status_changed", tenantID, leadID, map[string]any{"from": from, "to": to})
}

func (e *EventLogger) LeadEscalated(ctx context.Context, tenantID, leadID string, followUpAt time.Time) {
	e.Log(ctx, "lead_escalated", tenantID, leadID, map[string]any{"follow_up_at": followUpAt.Format(time.RFC3339)})
}

func (e *EventLogger) TransportFailed(ctx context.Context, tenantID, leadID string, err error) {
	e.Log(ctx, "transport_failed", tenantID, leadID, map[string]any{"error": err.Error()})
}

func (e *EventLogger) ConversationCompleted(ctx context.Context, tenantID, leadID, status string) {
	e.Log(ctx, "conversation_completed", tenantID, leadID, map[string]any{"status": status})
}
