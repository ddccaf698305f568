package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/analytics"
	"github.com/spendsense/spendsense/internal/api/middleware"
	"github.com/spendsense/spendsense/internal/domain"
)

// AnalyticsHandler handles dashboard aggregation endpoints.
type AnalyticsHandler struct {
	svc *analytics.Service
	log zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc *analytics.Service, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		svc: svc,
		log: log,
	}
}

// PersonasCurrent handles GET /api/analytics/personas/current
func (h *AnalyticsHandler) PersonasCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid time_window, want 30d or 180d")
		return
	}

	dist, err := h.svc.CurrentDistribution(ctx, window)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute persona distribution")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute persona distribution")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"time_window":  window,
		"distribution": dist,
		"total":        dist.Total(),
	})
}

// PersonasWeekly handles GET /api/analytics/personas/weekly
func (h *AnalyticsHandler) PersonasWeekly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid time_window, want 30d or 180d")
		return
	}
	weeks := parseIntQuery(r.URL.Query(), "weeks", analytics.DefaultWeeks)

	snapshots, err := h.svc.WeeklyDistribution(ctx, window, weeks)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute weekly distribution")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute weekly distribution")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"time_window": window,
		"weeks":       snapshots,
	})
}

// Safety handles GET /api/analytics/safety
func (h *AnalyticsHandler) Safety(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	indicators, err := h.svc.SafetyIndicators(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute safety indicators")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute safety indicators")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, indicators)
}

// Engagement handles GET /api/analytics/engagement
func (h *AnalyticsHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid time_window, want 30d or 180d")
		return
	}

	var persona domain.Persona
	if raw := r.URL.Query().Get("persona"); raw != "" {
		for _, p := range domain.Personas {
			if string(p) == raw {
				persona = p
				break
			}
		}
		if persona == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Unknown persona")
			return
		}
	}

	engagement, err := h.svc.Engagement(ctx, window, persona)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute engagement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute engagement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"time_window": window,
		"personas":    engagement,
	})
}
