package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/internal/api/middleware"
	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/jobs"
	"github.com/spendsense/spendsense/internal/plan"
	"github.com/spendsense/spendsense/internal/signals"
	"github.com/spendsense/spendsense/internal/store"
	"github.com/spendsense/spendsense/internal/trace"
)

// UsersHandler handles user-related endpoints.
type UsersHandler struct {
	repo      store.Repository
	publisher jobs.Publisher
	traces    *trace.Service
	log       zerolog.Logger
	now       func() time.Time
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(repo store.Repository, publisher jobs.Publisher, traces *trace.Service, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		repo:      repo,
		publisher: publisher,
		traces:    traces,
		log:       log,
		now:       time.Now,
	}
}

// userRow is one line of the user listing.
type userRow struct {
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	Flagged             bool   `json:"flagged"`
	Persona30d          string `json:"persona_30d,omitempty"`
	BehaviorCount       int    `json:"behavior_count"`
	RecommendationCount int    `json:"recommendation_count"`
}

// ListUsers handles GET /api/users
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.repo.ListUsers(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		row := userRow{UserID: u.UserID, Name: u.Name, Flagged: u.Flagged}

		assignment, err := h.repo.GetAssignment(ctx, u.UserID, domain.Window30d)
		switch {
		case err == nil:
			row.Persona30d = string(assignment.Persona)
		case !errors.Is(err, store.ErrNotFound):
			h.log.Error().Err(err).Str("user_id", u.UserID).Msg("Failed to load assignment")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list users")
			return
		}

		sigs, err := h.repo.ListSignals(ctx, store.Filter{UserID: u.UserID})
		if err != nil {
			h.log.Error().Err(err).Str("user_id", u.UserID).Msg("Failed to count signals")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list users")
			return
		}
		row.BehaviorCount = len(sigs)

		recs, err := h.repo.ListRecommendations(ctx, store.Filter{UserID: u.UserID})
		if err != nil {
			h.log.Error().Err(err).Str("user_id", u.UserID).Msg("Failed to count recommendations")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list users")
			return
		}
		row.RecommendationCount = len(recs)

		rows = append(rows, row)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"users": rows,
		"count": len(rows),
	})
}

// GetUser handles GET /api/users/{id}
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	user, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	personas := make(map[string]*domain.PersonaAssignment, len(domain.Windows))
	for _, window := range domain.Windows {
		assignment, err := h.repo.GetAssignment(ctx, userID, window)
		switch {
		case err == nil:
			personas[string(window)] = assignment
		case errors.Is(err, store.ErrNotFound):
			personas[string(window)] = nil
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load assignment")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to get user")
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"personas": personas,
	})
}

// GetSignals handles GET /api/users/{id}/signals
func (h *UsersHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	window, err := parseWindow(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid time_window, want 30d or 180d")
		return
	}
	if _, err := h.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get signals")
		return
	}

	sigs, err := h.repo.ListSignals(ctx, store.Filter{UserID: userID, Window: window})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list signals")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get signals")
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"time_window": window,
		"signals":     sigs,
		"count":       len(sigs),
	})
}

// GetRecommendations handles GET /api/users/{id}/recommendations
func (h *UsersHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	if _, err := h.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get recommendations")
		return
	}

	recs, err := h.repo.ListRecommendations(ctx, store.Filter{UserID: userID})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list recommendations")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get recommendations")
		return
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"recommendations": recs,
		"count":           len(recs),
	})
}

// GetTimeline handles GET /api/users/{id}/timeline
func (h *UsersHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	if _, err := h.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get timeline")
		return
	}

	query := r.URL.Query()
	start, err := parseDateQuery(query, "start_date")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDateQuery(query, "end_date")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	timeline, err := h.traces.Timeline(ctx, userID, start, endOfDay(end))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to assemble timeline")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get timeline")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"timeline": timeline,
		"count":    len(timeline),
	})
}

// GetPlan handles GET /api/users/{id}/plan
func (h *UsersHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	window, err := parseWindow(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid time_window, want 30d or 180d")
		return
	}
	if _, err := h.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build plan")
		return
	}

	records, err := h.repo.ListSignals(ctx, store.Filter{UserID: userID, Window: window})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list signals")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build plan")
		return
	}
	bundle, err := signals.Bundle(userID, window, records)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to decode signals")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build plan")
		return
	}

	txns, err := h.repo.ListTransactions(ctx, store.Filter{UserID: userID})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build plan")
		return
	}

	asOf := h.now()
	income := decimal.NewFromFloat(signals.MonthlyIncome(txns, window, asOf))
	var spending []plan.CategorySpend
	for _, cs := range signals.CategorySpending(txns, window, asOf) {
		spending = append(spending, plan.CategorySpend{
			Category: cs.Category,
			Amount:   decimal.NewFromFloat(cs.Amount),
		})
	}

	middleware.WriteJSON(w, http.StatusOK, plan.Build(bundle, income, spending))
}

// Refresh handles POST /api/users/{id}/refresh
func (h *UsersHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	var req struct {
		TimeWindow string `json:"time_window"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var window domain.TimeWindow
	if req.TimeWindow != "" {
		parsed, err := domain.ParseTimeWindow(req.TimeWindow)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid time_window, want 30d or 180d")
			return
		}
		window = parsed
	}

	if _, err := h.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue refresh")
		return
	}

	job := &jobs.RefreshSignalsJob{
		UserID:     userID,
		TimeWindow: window,
	}
	if err := h.publisher.PublishRefreshSignals(ctx, job); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue refresh job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue refresh")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", userID).Msg("Refresh job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"user_id": userID,
		"status":  string(job.Status),
	})
}

// Flag handles POST /api/users/{id}/flag
func (h *UsersHandler) Flag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	var req struct {
		OperatorID string `json:"operator_id"`
		Reason     string `json:"reason"`
		Flagged    *bool  `json:"flagged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OperatorID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "operator_id is required")
		return
	}
	flagged := true
	if req.Flagged != nil {
		flagged = *req.Flagged
	}

	if _, err := h.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to flag user")
		return
	}

	if err := h.repo.SetUserFlagged(ctx, userID, flagged); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to set user flag")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to flag user")
		return
	}

	action := &domain.OperatorAction{
		ActionID:   newActionID(),
		UserID:     userID,
		OperatorID: req.OperatorID,
		ActionType: domain.ActionFlag,
		Reason:     req.Reason,
		CreatedAt:  h.now(),
	}
	if err := h.repo.InsertOperatorAction(ctx, action); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to record flag action")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to flag user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"flagged":   flagged,
		"action_id": action.ActionID,
	})
}
