package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/leadads"
	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
	"github.com/wolfman30/autolead-ai-platform/internal/conversation"
	"github.com/wolfman30/autolead-ai-platform/internal/events"
	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/internal/messaging"
	observemetrics "github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/internal/tenancy"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

const (
	customerWaID  = "34600111222"
	customerPhone = "+34600111222"
	verifyToken   = "verify-me"
)

type fakeConversation struct {
	mu       sync.Mutex
	calls    []conversation.InboundMessage
	failOnce map[string]error
	errs     map[string]error
	panicOn  string
}

func (f *fakeConversation) HandleInbound(ctx context.Context, in conversation.InboundMessage) (*conversation.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if in.Text == f.panicOn && f.panicOn != "" {
		panic("generator exploded")
	}
	if err, ok := f.failOnce[in.Text]; ok {
		delete(f.failOnce, in.Text)
		return nil, err
	}
	if err, ok := f.errs[in.Text]; ok {
		return nil, err
	}
	return &conversation.TurnResult{Reply: "ok"}, nil
}

func (f *fakeConversation) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Text)
	}
	return out
}

type fakeFetcher struct {
	leads map[string]*leadads.LeadDetails
}

func (f *fakeFetcher) FetchLead(ctx context.Context, id string) (*leadads.LeadDetails, error) {
	d, ok := f.leads[id]
	if !ok {
		return nil, errors.New("graph: lead not found")
	}
	return d, nil
}

type harness struct {
	router   chi.Router
	logs     *MemoryLogStore
	conv     *fakeConversation
	statuses *messaging.MemoryStore
	leads    *leads.InMemoryRepository
	fetcher  *fakeFetcher
}

func newHarness(t *testing.T, appSecret string) *harness {
	t.Helper()
	h := &harness{
		logs:     NewMemoryLogStore(),
		conv:     &fakeConversation{failOnce: map[string]error{}, errs: map[string]error{}},
		statuses: messaging.NewMemoryStore(),
		leads:    leads.NewInMemoryRepository(),
		fetcher:  &fakeFetcher{leads: map[string]*leadads.LeadDetails{}},
	}
	logger := logging.Default()
	metrics := observemetrics.NewWebhookMetrics(prometheus.NewRegistry())
	tenants := tenancy.NewStaticResolver(map[string]string{"PNID-1": "tenant-1", "PAGE-1": "tenant-1"}, "")
	dedup := events.NewMemoryProcessedStore()

	handler := NewHandler(HandlerConfig{
		Logs:      h.logs,
		AppSecret: appSecret,
		Metrics:   metrics,
		Logger:    logger,
		Channels: []Channel{
			{
				Name:        ChannelWhatsApp,
				VerifyToken: verifyToken,
				Processor: NewWhatsAppProcessor(WhatsAppConfig{
					Conversation: h.conv,
					Statuses:     h.statuses,
					Tenants:      tenants,
					Dedup:        dedup,
					Metrics:      metrics,
					Logger:       logger,
				}),
			},
			{
				Name:        ChannelLeadAds,
				VerifyToken: verifyToken,
				Processor: NewLeadAdsProcessor(LeadAdsConfig{
					Fetcher: h.fetcher,
					Leads:   h.leads,
					Tenants: tenants,
					Dedup:   dedup,
					Metrics: metrics,
					Logger:  logger,
				}),
			},
		},
	})
	r := chi.NewRouter()
	r.Get("/webhooks/{channel}", handler.Verify)
	r.Post("/webhooks/{channel}", handler.Receive)
	r.Post("/admin/webhooks/logs/{logID}/replay", handler.Replay)
	h.router = r
	return h
}

func (h *harness) post(t *testing.T, channel string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+channel, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(meta.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) replay(t *testing.T, logID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/webhooks/logs/"+logID+"/replay", nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) lastLog(t *testing.T) LogEntry {
	t.Helper()
	all := h.logs.All()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func textMessage(id, text string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"from":%q,"id":%q,"timestamp":"1760000000","type":"text","text":{"body":%q}}`, customerWaID, id, text))
}

func whatsappBody(t *testing.T, value map[string]any) []byte {
	t.Helper()
	env := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id":      "WABA-1",
			"changes": []any{map[string]any{"field": "messages", "value": value}},
		}},
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func messagesValue(messages ...json.RawMessage) map[string]any {
	return map[string]any{
		"messaging_product": "whatsapp",
		"metadata":          map[string]any{"display_phone_number": "34910000000", "phone_number_id": "PNID-1"},
		"messages":          messages,
	}
}

func leadgenBody(t *testing.T, leadgenIDs ...string) []byte {
	t.Helper()
	changes := make([]any, 0, len(leadgenIDs))
	for _, id := range leadgenIDs {
		changes = append(changes, map[string]any{
			"field": "leadgen",
			"value": map[string]any{"leadgen_id": id, "page_id": "PAGE-1", "form_id": "FORM-1"},
		})
	}
	body, err := json.Marshal(map[string]any{
		"object": "page",
		"entry":  []any{map[string]any{"id": "PAGE-1", "changes": changes}},
	})
	require.NoError(t, err)
	return body
}

func TestVerifyHandshake(t *testing.T) {
	h := newHarness(t, "")

	cases := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"accepted", "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"lead ads accepted", "/webhooks/leadads?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc", http.StatusOK, "abc"},
		{"wrong token", "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "/webhooks/whatsapp?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"unknown channel", "/webhooks/telegram?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
				assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
			}
		})
	}
	assert.Empty(t, h.logs.All(), "handshake must not be logged")
}

func TestReceiveMalformedItemDoesNotAbortDelivery(t *testing.T) {
	h := newHarness(t, "")
	body := whatsappBody(t, messagesValue(
		textMessage("wamid.A", "Hola, busco coche"),
		json.RawMessage(`{"from":"34600111222","id":5,"type":"text"}`),
		textMessage("wamid.C", "Mi presupuesto es de 15 mil"),
	))

	rec := h.post(t, ChannelWhatsApp, body, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Acknowledgement, rec.Body.String())
	assert.Equal(t, []string{"Hola, busco coche", "Mi presupuesto es de 15 mil"}, h.conv.texts())

	entry := h.lastLog(t)
	assert.Equal(t, LogError, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "1 of 3 items failed")
	assert.NotNil(t, entry.ProcessedAt)
}

func TestReceiveMarksProcessedAndPassesInbound(t *testing.T) {
	h := newHarness(t, "")
	value := messagesValue(textMessage("wamid.A", "Hola"))
	value["contacts"] = []any{map[string]any{"profile": map[string]any{"name": "Lucía"}, "wa_id": customerWaID}}

	rec := h.post(t, ChannelWhatsApp, whatsappBody(t, value), "")

	require.Equal(t, http.StatusOK, rec.Code)
	entry := h.lastLog(t)
	assert.Equal(t, LogProcessed, entry.Status)
	assert.Equal(t, ChannelWhatsApp, entry.EventType)

	require.Len(t, h.conv.calls, 1)
	in := h.conv.calls[0]
	assert.Equal(t, "tenant-1", in.TenantID)
	assert.Equal(t, customerPhone, in.Phone)
	assert.Equal(t, "Lucía", in.ProfileName)
	assert.Equal(t, "wamid.A", in.ExternalID)
	require.NotNil(t, in.SentAt)
	assert.Equal(t, int64(1760000000), in.SentAt.Unix())
}

func TestReceiveDuplicateMessageRunsOnce(t *testing.T) {
	h := newHarness(t, "")
	body := whatsappBody(t, messagesValue(textMessage("wamid.A", "Hola")))

	require.Equal(t, http.StatusOK, h.post(t, ChannelWhatsApp, body, "").Code)
	require.Equal(t, http.StatusOK, h.post(t, ChannelWhatsApp, body, "").Code)

	assert.Len(t, h.conv.calls, 1)
	logs := h.logs.All()
	require.Len(t, logs, 2)
	assert.Equal(t, LogProcessed, logs[0].Status)
	assert.Equal(t, LogProcessed, logs[1].Status)
}

func TestReceiveCompletedConversationIsNotAFailure(t *testing.T) {
	h := newHarness(t, "")
	h.conv.errs["gracias"] = conversation.ErrConversationCompleted

	rec := h.post(t, ChannelWhatsApp, whatsappBody(t, messagesValue(textMessage("wamid.A", "gracias"))), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, LogProcessed, h.lastLog(t).Status)
}

func TestReceiveRecoversFromPanickingItem(t *testing.T) {
	h := newHarness(t, "")
	h.conv.panicOn = "boom"
	body := whatsappBody(t, messagesValue(
		textMessage("wamid.A", "boom"),
		textMessage("wamid.B", "Hola"),
	))

	rec := h.post(t, ChannelWhatsApp, body, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"boom", "Hola"}, h.conv.texts())
	entry := h.lastLog(t)
	assert.Equal(t, LogError, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "panic")
}

func TestReplayRerunsOnlyFailedItems(t *testing.T) {
	h := newHarness(t, "")
	h.conv.failOnce["Busco un SUV"] = errors.New("database unavailable")
	body := whatsappBody(t, messagesValue(
		textMessage("wamid.A", "Hola"),
		textMessage("wamid.B", "Busco un SUV"),
	))

	require.Equal(t, http.StatusOK, h.post(t, ChannelWhatsApp, body, "").Code)
	entry := h.lastLog(t)
	require.Equal(t, LogError, entry.Status)

	rec := h.replay(t, entry.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReplayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, LogProcessed, resp.Status)
	assert.Equal(t, 2, resp.Summary.Succeeded)
	assert.Equal(t, 0, resp.Summary.Failed)

	assert.Equal(t, []string{"Hola", "Busco un SUV", "Busco un SUV"}, h.conv.texts())
	stored, err := h.logs.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, LogProcessed, stored.Status)
}

func TestReplayUnknownLog(t *testing.T) {
	h := newHarness(t, "")
	assert.Equal(t, http.StatusNotFound, h.replay(t, "missing").Code)
}

func TestReceiveSignature(t *testing.T) {
	const secret = "app-secret"
	h := newHarness(t, secret)
	body := whatsappBody(t, messagesValue(textMessage("wamid.A", "Hola")))

	rec := h.post(t, ChannelWhatsApp, body, "sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.conv.calls)
	forged := h.lastLog(t)
	assert.Equal(t, LogError, forged.Status)
	assert.Equal(t, http.StatusConflict, h.replay(t, forged.ID).Code)

	rec = h.post(t, ChannelWhatsApp, body, meta.Sign(secret, body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, h.conv.calls, 1)
	assert.Equal(t, LogProcessed, h.lastLog(t).Status)
}

func TestReceiveOversizedBodyIsLoggedAndAcknowledged(t *testing.T) {
	h := newHarness(t, "")
	prefix := whatsappBody(t, messagesValue(textMessage("wamid.BIG", "Hola")))
	body := append(append([]byte{}, prefix[:len(prefix)-1]...), bytes.Repeat([]byte(" "), maxBodyBytes+1)...)

	rec := h.post(t, ChannelWhatsApp, body, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Acknowledgement, rec.Body.String())
	assert.Empty(t, h.conv.calls)
	entry := h.lastLog(t)
	assert.Equal(t, LogError, entry.Status)
	assert.Equal(t, bodyTooLarge, entry.ErrorMessage)
	assert.NotEmpty(t, entry.Payload)
	assert.Equal(t, http.StatusConflict, h.replay(t, entry.ID).Code)
}

func TestReceiveInvalidEnvelopeStillAcknowledged(t *testing.T) {
	h := newHarness(t, "")

	rec := h.post(t, ChannelWhatsApp, []byte("not json"), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Acknowledgement, rec.Body.String())
	entry := h.lastLog(t)
	assert.Equal(t, LogError, entry.Status)
	assert.Equal(t, "not json", string(replayBody(entry.Payload)))
}

func TestReceiveUnsupportedMessageIsSkipped(t *testing.T) {
	h := newHarness(t, "")
	image := json.RawMessage(fmt.Sprintf(`{"from":%q,"id":"wamid.IMG","type":"image","image":{"id":"media-1"}}`, customerWaID))

	rec := h.post(t, ChannelWhatsApp, whatsappBody(t, messagesValue(image)), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.conv.calls)
	assert.Equal(t, LogProcessed, h.lastLog(t).Status)
}

func TestReceiveDeliveryStatuses(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	out := &messaging.Message{LeadID: "lead-1", Direction: messaging.DirectionOutbound, Content: "Hola", ExternalID: "wamid.OUT", Status: messaging.StatusSent}
	require.NoError(t, h.statuses.Insert(ctx, out))

	value := messagesValue()
	value["statuses"] = []any{
		map[string]any{"id": "wamid.OUT", "status": "read", "timestamp": "1760000100", "recipient_id": customerWaID},
		map[string]any{"id": "wamid.OUT", "status": "delivered", "timestamp": "1760000050", "recipient_id": customerWaID},
		map[string]any{"id": "wamid.UNKNOWN", "status": "sent", "recipient_id": customerWaID},
	}

	rec := h.post(t, ChannelWhatsApp, whatsappBody(t, value), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, LogProcessed, h.lastLog(t).Status)
	msgs := h.statuses.All("lead-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.StatusRead, msgs[0].Status, "late delivered callback must not downgrade read")
}

func TestLeadAdsCreatesLead(t *testing.T) {
	h := newHarness(t, "")
	h.fetcher.leads["LG-1"] = &leadads.LeadDetails{
		ID:         "LG-1",
		CampaignID: "CMP-9",
		FieldData: []leadads.FieldDatum{
			{Name: "full_name", Values: []string{"Lucía García"}},
			{Name: "phone_number", Values: []string{"600111222"}},
			{Name: "email", Values: []string{"Lucia@Example.com"}},
		},
	}
	body := leadgenBody(t, "LG-1")

	require.Equal(t, http.StatusOK, h.post(t, ChannelLeadAds, body, "").Code)
	require.Equal(t, http.StatusOK, h.post(t, ChannelLeadAds, body, "").Code)

	lead, err := h.leads.GetByPhone(context.Background(), customerPhone)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", lead.TenantID)
	assert.Equal(t, "Lucía García", lead.Name)
	assert.Equal(t, "lucia@example.com", lead.Email)
	assert.Equal(t, leads.SourceLeadAds, lead.Source)
	assert.Equal(t, "CMP-9", lead.CampaignID)
	assert.Equal(t, funnel.StatusNuevo, lead.Status)
	for _, entry := range h.logs.All() {
		assert.Equal(t, LogProcessed, entry.Status)
	}
}

func TestLeadAdsEnrichesExistingWhatsAppLead(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	existing, _, err := h.leads.GetOrCreateByPhone(ctx, "tenant-1", customerPhone, "", leads.SourceWhatsApp)
	require.NoError(t, err)
	existing.Status = funnel.StatusActivo
	require.NoError(t, h.leads.Update(ctx, existing))

	h.fetcher.leads["LG-2"] = &leadads.LeadDetails{
		ID:         "LG-2",
		CampaignID: "CMP-3",
		FieldData: []leadads.FieldDatum{
			{Name: "full_name", Values: []string{"Pablo Ruiz"}},
			{Name: "phone_number", Values: []string{customerPhone}},
		},
	}

	require.Equal(t, http.StatusOK, h.post(t, ChannelLeadAds, leadgenBody(t, "LG-2"), "").Code)

	lead, err := h.leads.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pablo Ruiz", lead.Name)
	assert.Equal(t, "CMP-3", lead.CampaignID)
	assert.Equal(t, leads.SourceWhatsApp, lead.Source)
	assert.Equal(t, funnel.StatusActivo, lead.Status)
}

func TestLeadAdsFetchFailureIsRecorded(t *testing.T) {
	h := newHarness(t, "")
	h.fetcher.leads["LG-OK"] = &leadads.LeadDetails{
		ID:        "LG-OK",
		FieldData: []leadads.FieldDatum{{Name: "phone_number", Values: []string{"+34611222333"}}},
	}

	rec := h.post(t, ChannelLeadAds, leadgenBody(t, "LG-MISSING", "LG-OK"), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	entry := h.lastLog(t)
	assert.Equal(t, LogError, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "1 of 2 items failed")
	lead, err := h.leads.GetByPhone(context.Background(), "+34611222333")
	require.NoError(t, err)
	assert.Equal(t, "+34611222333", lead.Name)
}
