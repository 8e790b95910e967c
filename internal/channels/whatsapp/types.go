// Package whatsapp speaks the WhatsApp Business Cloud API: webhook payload
// shapes for the "messages" field and the outbound send client.
package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldMessages is the only webhook field this package handles.
const FieldMessages = "messages"

// MessagesValue is the value of a "messages" change. Each sub-item is kept
// raw so a malformed one can fail on its own.
type MessagesValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []json.RawMessage `json:"contacts,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// Metadata identifies the business number the change belongs to.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender profile attached to inbound messages.
type Contact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// InboundMessage is one message a customer sent to the business.
type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
}

// Body returns the customer-visible text of the message, or "" for media
// and other types the bot does not answer.
func (m InboundMessage) Body() string {
	switch {
	case m.Text != nil:
		return strings.TrimSpace(m.Text.Body)
	case m.Button != nil:
		return strings.TrimSpace(m.Button.Text)
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return strings.TrimSpace(m.Interactive.ButtonReply.Title)
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return strings.TrimSpace(m.Interactive.ListReply.Title)
	}
	return ""
}

// SentAt parses the transport timestamp (unix seconds).
func (m InboundMessage) SentAt() *time.Time {
	return parseUnix(m.Timestamp)
}

// StatusUpdate is a delivery callback for a message the business sent.
type StatusUpdate struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors,omitempty"`
}

// StatusError explains a failed delivery.
type StatusError struct {
	Code      int    `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message,omitempty"`
	ErrorData struct {
		Details string `json:"details"`
	} `json:"error_data,omitempty"`
}

// ErrorSummary joins the callback errors into one line.
func (s StatusUpdate) ErrorSummary() string {
	parts := make([]string, 0, len(s.Errors))
	for _, e := range s.Errors {
		detail := e.Title
		if e.ErrorData.Details != "" {
			detail += ": " + e.ErrorData.Details
		}
		parts = append(parts, fmt.Sprintf("%d %s", e.Code, detail))
	}
	return strings.Join(parts, "; ")
}

// DecodeValue decodes the value of a "messages" change.
func DecodeValue(raw json.RawMessage) (MessagesValue, error) {
	var v MessagesValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return MessagesValue{}, fmt.Errorf("whatsapp: decode change value: %w", err)
	}
	return v, nil
}

// DecodeContact decodes one contacts[] item.
func DecodeContact(raw json.RawMessage) (Contact, error) {
	var c Contact
	if err := json.Unmarshal(raw, &c); err != nil {
		return Contact{}, fmt.Errorf("whatsapp: decode contact: %w", err)
	}
	if strings.TrimSpace(c.WaID) == "" {
		return Contact{}, fmt.Errorf("whatsapp: contact without wa_id")
	}
	return c, nil
}

// DecodeMessage decodes one messages[] item.
func DecodeMessage(raw json.RawMessage) (InboundMessage, error) {
	var m InboundMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return InboundMessage{}, fmt.Errorf("whatsapp: decode message: %w", err)
	}
	if m.ID == "" || m.From == "" {
		return InboundMessage{}, fmt.Errorf("whatsapp: message missing id or sender")
	}
	return m, nil
}

// DecodeStatus decodes one statuses[] item.
func DecodeStatus(raw json.RawMessage) (StatusUpdate, error) {
	var s StatusUpdate
	if err := json.Unmarshal(raw, &s); err != nil {
		return StatusUpdate{}, fmt.Errorf("whatsapp: decode status: %w", err)
	}
	if s.ID == "" || s.Status == "" {
		return StatusUpdate{}, fmt.Errorf("whatsapp: status missing id or value")
	}
	return s, nil
}

// ProfileNames indexes contact names by wa_id, skipping malformed items.
func (v MessagesValue) ProfileNames() map[string]string {
	names := make(map[string]string, len(v.Contacts))
	for _, raw := range v.Contacts {
		c, err := DecodeContact(raw)
		if err != nil {
			continue
		}
		names[c.WaID] = strings.TrimSpace(c.Profile.Name)
	}
	return names
}

func parseUnix(raw string) *time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

type sendTextRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type markReadRequest struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// SendResponse is returned by POST /{phone-number-id}/messages.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}
