package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/autolead-ai-platform/internal/leads"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// ConsoleService is the part of Service used by the test console.
type ConsoleService interface {
	HandleConsoleMessage(ctx context.Context, leadID, text string) (*TurnResult, error)
}

// Handler serves the operator test console.
type Handler struct {
	service ConsoleService
	logger  *logging.Logger
}

func NewHandler(service ConsoleService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type consoleRequest struct {
	Message string `json:"message"`
}

type consoleResponse struct {
	*TurnResult
	Fallback bool `json:"fallback,omitempty"`
}

// TestMessage handles POST /admin/leads/{leadID}/test-messages.
func (h *Handler) TestMessage(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	var req consoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	result, err := h.service.HandleConsoleMessage(r.Context(), leadID, req.Message)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, consoleResponse{TurnResult: result})
	case errors.Is(err, ErrGenerationFailed):
		h.writeJSON(w, http.StatusOK, consoleResponse{TurnResult: result, Fallback: true})
	case errors.Is(err, ErrConversationCompleted):
		h.writeError(w, http.StatusConflict, "conversation_completed")
	case errors.Is(err, ErrEmptyMessage):
		h.writeError(w, http.StatusBadRequest, "empty_message")
	case errors.Is(err, leads.ErrLeadNotFound):
		h.writeError(w, http.StatusNotFound, "lead_not_found")
	default:
		h.logger.Error("console turn failed", "lead_id", leadID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code string) {
	h.writeJSON(w, status, map[string]string{"error": code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
