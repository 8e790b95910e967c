package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskLeadEscalated = "leads.escalated"
	TaskFollowUpDue   = "leads.follow_up_due"
)

// EscalationNotice is the payload for a manager escalation email.
type EscalationNotice struct {
	TenantID          string `json:"tenantId"`
	LeadID            string `json:"leadId"`
	LeadName          string `json:"leadName"`
	ConversationLabel string `json:"conversationLabel"`
}

// FollowUpReminder asks for a manager reminder at DueAt.
type FollowUpReminder struct {
	TenantID string    `json:"tenantId"`
	LeadID   string    `json:"leadId"`
	DueAt    time.Time `json:"dueAt"`
}

func NewEscalationTask(n EscalationNotice) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadEscalated, data, asynq.MaxRetry(5)), nil
}

func ParseEscalationTask(task *asynq.Task) (EscalationNotice, error) {
	var n EscalationNotice
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return EscalationNotice{}, fmt.Errorf("notify: decode %s: %w", task.Type(), err)
	}
	return n, nil
}

func NewFollowUpTask(r FollowUpReminder) (*asynq.Task, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpDue, data, asynq.MaxRetry(3)), nil
}

func ParseFollowUpTask(task *asynq.Task) (FollowUpReminder, error) {
	var r FollowUpReminder
	if err := json.Unmarshal(task.Payload(), &r); err != nil {
		return FollowUpReminder{}, fmt.Errorf("notify: decode %s: %w", task.Type(), err)
	}
	return r, nil
}
