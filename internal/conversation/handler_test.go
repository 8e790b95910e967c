package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
)

func serveConsole(t *testing.T, svc ConsoleService, leadID, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/admin/leads/{leadID}/test-messages", NewHandler(svc, nil).TestMessage)
	req := httptest.NewRequest(http.MethodPost, "/admin/leads/"+leadID+"/test-messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestConsoleHandlerReplies(t *testing.T) {
	h := newHarness(t, "¡Hola! LEAD_UPDATE_JSON: {\"status\": \"activo\"}")
	lead := h.seedLead(t, "+34600111222", funnel.StatusContactado)

	rec := serveConsole(t, h.svc, lead.ID, `{"message":"hola"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Reply  string `json:"reply"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "¡Hola!" || resp.Status != "activo" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestConsoleHandlerCompletedConversation(t *testing.T) {
	h := newHarness(t)
	lead := h.seedLead(t, "+34600111222", funnel.StatusManager)

	rec := serveConsole(t, h.svc, lead.ID, `{"message":"hola"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"conversation_completed"}` {
		t.Fatalf("body = %s", got)
	}
}

func TestConsoleHandlerErrors(t *testing.T) {
	h := newHarness(t)
	lead := h.seedLead(t, "+34600111222", funnel.StatusActivo)

	if rec := serveConsole(t, h.svc, "missing", `{"message":"hola"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown lead status = %d", rec.Code)
	}
	if rec := serveConsole(t, h.svc, lead.ID, `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}
	if rec := serveConsole(t, h.svc, lead.ID, `{"message":" "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message status = %d", rec.Code)
	}
}

type failingConsole struct{}

func (failingConsole) HandleConsoleMessage(context.Context, string, string) (*TurnResult, error) {
	return &TurnResult{LeadID: "l1", Reply: FallbackReply}, ErrGenerationFailed
}

func TestConsoleHandlerFallback(t *testing.T) {
	rec := serveConsole(t, failingConsole{}, "l1", `{"message":"hola"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"fallback":true`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
