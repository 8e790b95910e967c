package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
	"github.com/wolfman30/autolead-ai-platform/internal/conversation"
	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
	httpmiddleware "github.com/wolfman30/autolead-ai-platform/internal/http/middleware"
	"github.com/wolfman30/autolead-ai-platform/internal/webhooks"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

const adminSecret = "admin-secret"

type countingProcessor struct {
	deliveries int
}

func (p *countingProcessor) Process(ctx context.Context, env meta.Envelope) webhooks.Summary {
	p.deliveries++
	return webhooks.Summary{Succeeded: len(env.Entry)}
}

type stubConsole struct{}

func (stubConsole) HandleConsoleMessage(ctx context.Context, leadID, text string) (*conversation.TurnResult, error) {
	return &conversation.TurnResult{LeadID: leadID, Reply: "¡Hola!", Status: funnel.StatusContactado}, nil
}

type testRouter struct {
	http.Handler
	processor *countingProcessor
	logs      *webhooks.MemoryLogStore
}

func newTestRouter(t *testing.T, mutate func(*Config)) *testRouter {
	t.Helper()
	logger := logging.Default()
	processor := &countingProcessor{}
	logs := webhooks.NewMemoryLogStore()
	cfg := &Config{
		Logger: logger,
		Webhooks: webhooks.NewHandler(webhooks.HandlerConfig{
			Logs:     logs,
			Channels: []webhooks.Channel{{Name: webhooks.ChannelWhatsApp, VerifyToken: "tok", Processor: processor}},
			Logger:   logger,
		}),
		Console:         conversation.NewHandler(stubConsole{}, logger),
		AdminAuthSecret: adminSecret,
		MetricsHandler:  promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return &testRouter{Handler: New(cfg), processor: processor, logs: logs}
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.AdminClaims{
		Role: httpmiddleware.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(adminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterHealthReportsDependencyFailure(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.HealthCheck = func(context.Context) error { return errors.New("db down") }
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterWebhookRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "42" {
		t.Fatalf("verify: status %d body %q", rr.Code, rr.Body.String())
	}

	body := `{"object":"whatsapp_business_account","entry":[{"id":"WABA-1","changes":[]}]}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body)))
	if rr.Code != http.StatusOK || rr.Body.String() != webhooks.Acknowledgement {
		t.Fatalf("receive: status %d body %q", rr.Code, rr.Body.String())
	}
	if router.processor.deliveries != 1 {
		t.Fatalf("expected one processed delivery, got %d", router.processor.deliveries)
	}
	if logs := router.logs.All(); len(logs) != 1 || logs[0].Status != webhooks.LogProcessed {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestRouterWebhookRateLimit(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.RateLimiter = httpmiddleware.NewRateLimiter(0.001, 1)
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=1", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/admin/leads/lead-1/test-messages", "/admin/webhooks/logs/log-1/replay"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"message":"hola"}`)))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusUnauthorized, rr.Code)
		}
	}
}

func TestRouterAdminConsole(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads/lead-1/test-messages", strings.NewReader(`{"message":"hola"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp struct {
		LeadID string `json:"lead_id"`
		Reply  string `json:"reply"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LeadID != "lead-1" || resp.Reply != "¡Hola!" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRouterAdminReplayUnknownLog(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/webhooks/logs/missing/replay", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterWithoutAdminSecretHidesAdminRoutes(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) { cfg.AdminAuthSecret = "" })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/leads/lead-1/test-messages", strings.NewReader(`{"message":"hola"}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
