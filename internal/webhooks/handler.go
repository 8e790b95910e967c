package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
	observemetrics "github.com/wolfman30/autolead-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

var webhookTracer = otel.Tracer("autolead.webhooks")

// Acknowledgement is the body Meta expects on every accepted delivery.
const Acknowledgement = "EVENT_RECEIVED"

const (
	maxBodyBytes          = 1 << 20
	defaultProcessTimeout = 2 * time.Minute
	signatureRejected     = "invalid signature"
	bodyTooLarge          = "body too large"
)

// Channel binds a webhook path segment to its handshake token and processor.
type Channel struct {
	Name        string
	VerifyToken string
	Processor   Processor
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Logs LogStore
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret      string
	Channels       []Channel
	ProcessTimeout time.Duration
	Metrics        *observemetrics.WebhookMetrics
	Logger         *logging.Logger
}

// Handler serves the Meta subscription handshake, the delivery endpoint and
// the admin replay of stored deliveries.
type Handler struct {
	logs      LogStore
	appSecret string
	channels  map[string]Channel
	timeout   time.Duration
	metrics   *observemetrics.WebhookMetrics
	logger    *logging.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logs == nil {
		panic("webhooks: log store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	channels := make(map[string]Channel, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.Processor == nil {
			continue
		}
		channels[ch.Name] = ch
	}
	return &Handler{
		logs:      cfg.Logs,
		appSecret: cfg.AppSecret,
		channels:  channels,
		timeout:   cfg.ProcessTimeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Verify answers GET /webhooks/{channel}.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.channels[chi.URLParam(r, "channel")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	challenge, ok := meta.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), ch.VerifyToken)
	if !ok {
		h.logger.Warn("webhook verification rejected", "channel", ch.Name, "mode", q.Get("hub.mode"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive answers POST /webhooks/{channel}. The body is logged before
// anything else; processing failures are recorded on the log entry and
// never change the 200 reply.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.channels[chi.URLParam(r, "channel")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	start := time.Now()
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	logID, err := h.logs.Append(r.Context(), ch.Name, body)
	if err != nil {
		// Without a log entry the delivery must come back from Meta.
		h.logger.Error("failed to log webhook delivery", "channel", ch.Name, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if readErr != nil {
		// The stored prefix is kept for inspection; the delivery is
		// acknowledged so Meta stops retrying it.
		reason := "body read failed: " + readErr.Error()
		var tooLarge *http.MaxBytesError
		if errors.As(readErr, &tooLarge) {
			reason = bodyTooLarge
		}
		h.logger.Warn("webhook body rejected", "channel", ch.Name, "log_id", logID, "bytes_read", len(body), "error", readErr)
		h.markError(r.Context(), logID, reason)
		h.metrics.ObserveDelivery(ch.Name, string(LogError), time.Since(start).Seconds())
		h.acknowledge(w)
		return
	}

	if h.appSecret != "" && !meta.VerifySignature(h.appSecret, body, r.Header.Get(meta.SignatureHeader)) {
		h.logger.Warn("invalid webhook signature", "channel", ch.Name, "log_id", logID)
		h.markError(r.Context(), logID, signatureRejected)
		h.metrics.ObserveDelivery(ch.Name, string(LogError), time.Since(start).Seconds())
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	status, _ := h.process(ctx, ch, logID, body)
	h.metrics.ObserveDelivery(ch.Name, string(status), time.Since(start).Seconds())

	h.acknowledge(w)
}

func (h *Handler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, Acknowledgement)
}

// ReplayResponse reports the outcome of a replayed delivery.
type ReplayResponse struct {
	LogID   string    `json:"log_id"`
	Channel string    `json:"channel"`
	Status  LogStatus `json:"status"`
	Summary Summary   `json:"summary"`
}

// Replay answers POST /admin/webhooks/logs/{logID}/replay by running a
// stored delivery through its processor again. Items already claimed by the
// deduper are skipped.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	entry, err := h.logs.Get(r.Context(), logID)
	if errors.Is(err, ErrLogNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "log_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load webhook log", "log_id", logID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	if entry.Status == LogError && entry.ErrorMessage == signatureRejected {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "signature_rejected"})
		return
	}
	if entry.Status == LogError && entry.ErrorMessage == bodyTooLarge {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "body_truncated"})
		return
	}
	ch, ok := h.channels[entry.EventType]
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "unknown_channel"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	status, summary := h.process(ctx, ch, entry.ID, replayBody(entry.Payload))
	h.logger.Info("webhook delivery replayed", "log_id", entry.ID, "channel", ch.Name, "status", status)
	writeJSON(w, http.StatusOK, ReplayResponse{LogID: entry.ID, Channel: ch.Name, Status: status, Summary: summary})
}

// process decodes body, runs the channel processor and records the final
// status on the log entry.
func (h *Handler) process(ctx context.Context, ch Channel, logID string, body []byte) (LogStatus, Summary) {
	ctx, span := webhookTracer.Start(ctx, "webhooks.process", trace.WithAttributes(
		attribute.String("channel", ch.Name),
		attribute.String("log_id", logID),
	))
	defer span.End()

	env, err := meta.ParseEnvelope(body)
	if err != nil {
		span.SetStatus(codes.Error, "invalid envelope")
		h.logger.Warn("invalid webhook envelope", "channel", ch.Name, "log_id", logID, "error", err)
		h.markError(ctx, logID, err.Error())
		return LogError, Summary{Failed: 1, Errors: []string{err.Error()}}
	}

	summary := ch.Processor.Process(ctx, env)
	span.SetAttributes(
		attribute.Int("items.succeeded", summary.Succeeded),
		attribute.Int("items.failed", summary.Failed),
	)
	if !summary.OK() {
		span.SetStatus(codes.Error, "item failures")
		h.markError(ctx, logID, summary.Error())
		return LogError, summary
	}
	if err := h.logs.MarkProcessed(ctx, logID); err != nil {
		h.logger.Error("failed to mark webhook log processed", "log_id", logID, "error", err)
	}
	return LogProcessed, summary
}

func (h *Handler) markError(ctx context.Context, logID, message string) {
	if err := h.logs.MarkError(ctx, logID, message); err != nil {
		h.logger.Error("failed to mark webhook log error", "log_id", logID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
