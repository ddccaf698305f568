package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/api/middleware"
	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// RecommendationsHandler handles recommendation-related endpoints.
type RecommendationsHandler struct {
	repo store.Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewRecommendationsHandler creates a new recommendations handler.
func NewRecommendationsHandler(repo store.Repository, log zerolog.Logger) *RecommendationsHandler {
	return &RecommendationsHandler{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Override handles POST /api/recommendations/{id}/override
func (h *RecommendationsHandler) Override(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recommendationID := r.PathValue("id")

	var req struct {
		Reason       string `json:"reason"`
		OverriddenBy string `json:"overridden_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" || req.OverriddenBy == "" {
		middleware.WriteError(w, http.StatusBadRequest, "reason and overridden_by are required")
		return
	}

	rec, err := h.repo.GetRecommendation(ctx, recommendationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Recommendation not found")
			return
		}
		h.log.Error().Err(err).Str("recommendation_id", recommendationID).Msg("Failed to get recommendation")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to override recommendation")
		return
	}

	at := h.now()
	if err := h.repo.OverrideRecommendation(ctx, recommendationID, req.Reason, req.OverriddenBy, at); err != nil {
		h.log.Error().Err(err).Str("recommendation_id", recommendationID).Msg("Failed to override recommendation")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to override recommendation")
		return
	}

	action := &domain.OperatorAction{
		ActionID:         newActionID(),
		UserID:           rec.UserID,
		OperatorID:       req.OverriddenBy,
		ActionType:       domain.ActionOverride,
		RecommendationID: recommendationID,
		Reason:           req.Reason,
		CreatedAt:        at,
	}
	if err := h.repo.InsertOperatorAction(ctx, action); err != nil {
		h.log.Error().Err(err).Str("recommendation_id", recommendationID).Msg("Failed to record override action")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record override action")
		return
	}

	updated, err := h.repo.GetRecommendation(ctx, recommendationID)
	if err != nil {
		h.log.Error().Err(err).Str("recommendation_id", recommendationID).Msg("Failed to reload recommendation")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to override recommendation")
		return
	}

	h.log.Info().
		Str("recommendation_id", recommendationID).
		Str("overridden_by", req.OverriddenBy).
		Msg("Recommendation overridden")

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"recommendation": updated,
		"action_id":      action.ActionID,
	})
}
