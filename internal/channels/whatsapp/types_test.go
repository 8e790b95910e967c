package whatsapp

import (
	"encoding/json"
	"testing"
)

const sampleValue = `{
  "messaging_product": "whatsapp",
  "metadata": {"display_phone_number": "34910000000", "phone_number_id": "1098765"},
  "contacts": [{"profile": {"name": "Lucía"}, "wa_id": "34612345678"}, {"wa_id": ""}],
  "messages": [
    {"from": "34612345678", "id": "wamid.1", "timestamp": "1714554000", "type": "text", "text": {"body": " Busco un SUV híbrido "}},
    {"from": "34612345678", "id": "wamid.2", "timestamp": "1714554001", "type": "interactive",
     "interactive": {"type": "button_reply", "button_reply": {"id": "b1", "title": "Sí, me interesa"}}},
    {"from": "34612345678", "id": "wamid.3", "timestamp": "x", "type": "image"},
    "not-an-object"
  ],
  "statuses": [
    {"id": "wamid.OUT1", "status": "failed", "timestamp": "1714554100", "recipient_id": "34612345678",
     "errors": [{"code": 131047, "title": "Re-engagement message", "error_data": {"details": "More than 24 hours have passed"}}]}
  ]
}`

func TestDecodeValueAndItems(t *testing.T) {
	v, err := DecodeValue(json.RawMessage(sampleValue))
	if err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if v.Metadata.PhoneNumberID != "1098765" {
		t.Fatalf("phone number id = %s", v.Metadata.PhoneNumberID)
	}
	if names := v.ProfileNames(); names["34612345678"] != "Lucía" || len(names) != 1 {
		t.Fatalf("unexpected names %v", names)
	}

	text, err := DecodeMessage(v.Messages[0])
	if err != nil {
		t.Fatal(err)
	}
	if text.Body() != "Busco un SUV híbrido" {
		t.Errorf("body = %q", text.Body())
	}
	if ts := text.SentAt(); ts == nil || ts.Unix() != 1714554000 {
		t.Errorf("sent at = %v", ts)
	}

	reply, err := DecodeMessage(v.Messages[1])
	if err != nil || reply.Body() != "Sí, me interesa" {
		t.Errorf("interactive body = %q err=%v", reply.Body(), err)
	}

	media, err := DecodeMessage(v.Messages[2])
	if err != nil || media.Body() != "" || media.SentAt() != nil {
		t.Errorf("media message should decode without body: %+v err=%v", media, err)
	}

	if _, err := DecodeMessage(v.Messages[3]); err == nil {
		t.Errorf("expected malformed item to fail")
	}

	st, err := DecodeStatus(v.Statuses[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := st.ErrorSummary(); got != "131047 Re-engagement message: More than 24 hours have passed" {
		t.Errorf("summary = %q", got)
	}
}
