package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
)

type mockEmailSender struct {
	mu      sync.Mutex
	sent    []EmailMessage
	callErr error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.callErr != nil {
		return m.callErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockEmailSender) messages() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

type mockLeadReader struct {
	leads map[string]*leads.Lead
}

func (m *mockLeadReader) GetByID(ctx context.Context, id string) (*leads.Lead, error) {
	if l, ok := m.leads[id]; ok {
		return l, nil
	}
	return nil, leads.ErrLeadNotFound
}

var manager = Sender{Email: "gestor@concesionario.es", Name: "Marta"}

func TestNotifyEscalation(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, manager, nil, nil)

	if err := svc.NotifyEscalation(context.Background(), "Lucía <b>", "WhatsApp +34600111222"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	sent := email.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sent))
	}
	if sent[0].To != manager.Email {
		t.Errorf("to = %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Subject, "Lucía") {
		t.Errorf("subject = %q", sent[0].Subject)
	}
	if !strings.Contains(sent[0].Body, "WhatsApp +34600111222") {
		t.Errorf("body missing label: %q", sent[0].Body)
	}
	if strings.Contains(sent[0].HTML, "<b>") {
		t.Errorf("html not escaped: %q", sent[0].HTML)
	}
}

func TestNotifyEscalation_NoManagerIsNoop(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, Sender{}, nil, nil)
	if err := svc.NotifyEscalation(context.Background(), "Lucía", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(email.messages()) != 0 {
		t.Fatal("expected no email")
	}
}

func TestNotifyEscalation_SendError(t *testing.T) {
	svc := NewService(&mockEmailSender{callErr: errors.New("smtp down")}, manager, nil, nil)
	if err := svc.NotifyEscalation(context.Background(), "Lucía", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNotifyFollowUpDue(t *testing.T) {
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	reader := &mockLeadReader{leads: map[string]*leads.Lead{
		"due":     {ID: "due", Name: "Lucía", Phone: "+34600111222", Status: funnel.StatusManager, NextFollowUpDate: &past},
		"later":   {ID: "later", Status: funnel.StatusManager, NextFollowUpDate: &future},
		"started": {ID: "started", Status: funnel.StatusIniciado, NextFollowUpDate: &past},
	}}
	email := &mockEmailSender{}
	svc := NewService(email, manager, reader, nil)
	svc.now = func() time.Time { return now }

	for _, id := range []string{"due", "later", "started", "missing"} {
		if err := svc.NotifyFollowUpDue(context.Background(), id); err != nil {
			t.Fatalf("%s: %v", id, err)
		}
	}
	sent := email.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Subject, "Lucía") || !strings.Contains(sent[0].Body, "+34600111222") {
		t.Errorf("unexpected reminder: %+v", sent[0])
	}
}
