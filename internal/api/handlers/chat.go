package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/api/middleware"
	"github.com/spendsense/spendsense/internal/chat"
	"github.com/spendsense/spendsense/internal/store"
)

// ChatHandler handles the guarded chat endpoint.
type ChatHandler struct {
	svc *chat.Service
	log zerolog.Logger
}

// NewChatHandler creates a new chat handler. svc may be nil when no
// generator is configured; the endpoint then reports unavailable.
func NewChatHandler(svc *chat.Service, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		svc: svc,
		log: log,
	}
}

// Post handles POST /api/chat
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.svc == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Chat is not configured")
		return
	}

	var req struct {
		UserID  string `json:"user_id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	answer, err := h.svc.Respond(ctx, req.UserID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			middleware.WriteError(w, http.StatusBadRequest, "message is required")
		case errors.Is(err, store.ErrNotFound):
			middleware.WriteError(w, http.StatusNotFound, "User not found")
		default:
			h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to generate chat response")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate chat response")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, answer)
}
