package conversation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
)

// UpdateDelimiter separates the customer-facing reply from the structured
// lead update in a generated message.
const UpdateDelimiter = "LEAD_UPDATE_JSON:"

// StructuredUpdate is the decoded suffix of a generated message. Only known
// keys survive decoding; nil fields were absent.
type StructuredUpdate struct {
	Status                    *funnel.Status
	Budget                    *string
	ExpectedPurchaseTimeframe *string
	Type                      *string
	Name                      *string
	// Completed is the model's hint that qualification is finished.
	Completed bool
}

// FunnelUpdate drops the completion hint.
func (u *StructuredUpdate) FunnelUpdate() funnel.Update {
	if u == nil {
		return funnel.Update{}
	}
	return funnel.Update{
		Status:                    u.Status,
		Budget:                    u.Budget,
		ExpectedPurchaseTimeframe: u.ExpectedPurchaseTimeframe,
		Type:                      u.Type,
		Name:                      u.Name,
	}
}

// Extraction is either a bare reply or a reply with an update.
type Extraction struct {
	Reply      string
	Structured *StructuredUpdate
}

// ExtractUpdate splits a generated message. It never fails: a missing or
// malformed update yields a reply-only Extraction.
func ExtractUpdate(raw string) Extraction {
	idx := strings.Index(raw, UpdateDelimiter)
	if idx < 0 {
		return Extraction{Reply: strings.TrimSpace(raw)}
	}

	reply := trimFence(strings.TrimSpace(raw[:idx]))
	update, ok := decodeUpdate(raw[idx+len(UpdateDelimiter):])
	if !ok {
		if reply == "" {
			reply = strings.TrimSpace(raw)
		}
		return Extraction{Reply: reply}
	}
	return Extraction{Reply: reply, Structured: update}
}

// trimFence removes a dangling opening fence the model sometimes wraps the
// update in.
func trimFence(reply string) string {
	for _, fence := range []string{"```json", "```"} {
		if strings.HasSuffix(reply, fence) {
			return strings.TrimSpace(strings.TrimSuffix(reply, fence))
		}
	}
	return reply
}

// decodeUpdate reports false only for a malformed suffix. A well-formed
// object with no usable key decodes to nil.
func decodeUpdate(suffix string) (*StructuredUpdate, bool) {
	start := strings.IndexByte(suffix, '{')
	if start < 0 {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(suffix[start:]))
	dec.UseNumber()
	var fields map[string]json.RawMessage
	// Decode reads one value, so a closing fence or chatter after the
	// object is ignored.
	if err := dec.Decode(&fields); err != nil {
		return nil, false
	}

	u := &StructuredUpdate{}
	if raw, ok := fields["status"]; ok {
		if s, ok := scalarString(raw); ok {
			if st, ok := funnel.ParseStatus(s); ok {
				u.Status = &st
			}
		}
	}
	u.Budget = optionalString(fields, "budget")
	u.ExpectedPurchaseTimeframe = optionalString(fields, "expectedPurchaseTimeframe")
	u.Type = optionalString(fields, "type")
	u.Name = optionalString(fields, "name")
	if raw, ok := fields["completed"]; ok {
		u.Completed = truthy(raw)
	}

	if u.FunnelUpdate().Empty() && !u.Completed {
		return nil, true
	}
	return u, true
}

func optionalString(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	s, ok := scalarString(raw)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// scalarString accepts JSON strings and numbers; numbers keep their
// literal form, so 25000 becomes "25000".
func scalarString(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func truthy(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	s, ok := scalarString(raw)
	return ok && strings.EqualFold(s, "true")
}
