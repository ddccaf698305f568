package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/api/middleware"
	"github.com/spendsense/spendsense/internal/store"
	"github.com/spendsense/spendsense/internal/trace"
)

// TracesHandler handles audit timeline endpoints.
type TracesHandler struct {
	svc *trace.Service
	log zerolog.Logger
}

// NewTracesHandler creates a new traces handler.
func NewTracesHandler(svc *trace.Service, log zerolog.Logger) *TracesHandler {
	return &TracesHandler{
		svc: svc,
		log: log,
	}
}

// List handles GET /api/traces
func (h *TracesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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

	q := trace.Query{
		UserID:  query.Get("user_id"),
		Persona: query.Get("persona"),
		Search:  query.Get("search"),
		Start:   start,
		End:     endOfDay(end),
		Limit:   parseIntQuery(query, "limit", trace.DefaultLimit),
		Offset:  parseIntQuery(query, "offset", 0),
	}

	// trace_type takes a comma-separated list of type names.
	if raw := query.Get("trace_type"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			q.Types = append(q.Types, trace.Type(name))
		}
	}

	page, err := h.svc.List(ctx, q)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list traces")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list traces")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, page)
}

// Stats handles GET /api/traces/stats
func (h *TracesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.svc.Stats(ctx, r.URL.Query().Get("user_id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute trace stats")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute trace stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// Get handles GET /api/traces/{id}
func (h *TracesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := r.PathValue("id")

	t, err := h.svc.Get(ctx, traceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Trace not found")
			return
		}
		h.log.Error().Err(err).Str("trace_id", traceID).Msg("Failed to get trace")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get trace")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, t)
}
