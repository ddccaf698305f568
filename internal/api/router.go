// Package api assembles the HTTP surface: one mux with method-and-path
// patterns, wrapped in the shared middleware chain. Handlers live in the
// handlers subpackage; this file only wires them together.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/analytics"
	"github.com/spendsense/spendsense/internal/api/handlers"
	"github.com/spendsense/spendsense/internal/api/middleware"
	"github.com/spendsense/spendsense/internal/chat"
	"github.com/spendsense/spendsense/internal/jobs"
	"github.com/spendsense/spendsense/internal/store"
	"github.com/spendsense/spendsense/internal/trace"
)

// Config carries everything the HTTP surface depends on. Chat may be nil
// when no model is configured; the chat endpoint then answers 503.
type Config struct {
	Store     store.Store
	Publisher jobs.Publisher
	Jobs      jobs.JobStore
	Chat      *chat.Service
	APIKey    string
	Log       zerolog.Logger
}

// NewHandler builds the full API handler: every route registered and the
// middleware chain applied. The returned handler is ready for http.Server.
func NewHandler(cfg Config) http.Handler {
	traceSvc := trace.NewService(cfg.Store)
	analyticsSvc := analytics.NewService(cfg.Store)

	usersHandler := handlers.NewUsersHandler(cfg.Store, cfg.Publisher, traceSvc, cfg.Log)
	recsHandler := handlers.NewRecommendationsHandler(cfg.Store, cfg.Log)
	chatHandler := handlers.NewChatHandler(cfg.Chat, cfg.Log)
	tracesHandler := handlers.NewTracesHandler(traceSvc, cfg.Log)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsSvc, cfg.Log)
	jobsHandler := handlers.NewJobsHandler(cfg.Jobs, cfg.Log)

	mux := http.NewServeMux()

	// Users endpoints
	mux.HandleFunc("GET /api/users", usersHandler.ListUsers)
	mux.HandleFunc("GET /api/users/{id}", usersHandler.GetUser)
	mux.HandleFunc("GET /api/users/{id}/signals", usersHandler.GetSignals)
	mux.HandleFunc("GET /api/users/{id}/recommendations", usersHandler.GetRecommendations)
	mux.HandleFunc("GET /api/users/{id}/timeline", usersHandler.GetTimeline)
	mux.HandleFunc("GET /api/users/{id}/plan", usersHandler.GetPlan)
	mux.HandleFunc("POST /api/users/{id}/refresh", usersHandler.Refresh)
	mux.HandleFunc("POST /api/users/{id}/flag", usersHandler.Flag)

	// Recommendations endpoints
	mux.HandleFunc("POST /api/recommendations/{id}/override", recsHandler.Override)

	// Chat endpoint
	mux.HandleFunc("POST /api/chat", chatHandler.Post)

	// Trace endpoints. The literal /stats pattern wins over the {id}
	// wildcard, so "stats" never reaches the lookup handler.
	mux.HandleFunc("GET /api/traces", tracesHandler.List)
	mux.HandleFunc("GET /api/traces/stats", tracesHandler.Stats)
	mux.HandleFunc("GET /api/traces/{id}", tracesHandler.Get)

	// Analytics endpoints
	mux.HandleFunc("GET /api/analytics/personas/current", analyticsHandler.PersonasCurrent)
	mux.HandleFunc("GET /api/analytics/personas/weekly", analyticsHandler.PersonasWeekly)
	mux.HandleFunc("GET /api/analytics/safety", analyticsHandler.Safety)
	mux.HandleFunc("GET /api/analytics/engagement", analyticsHandler.Engagement)

	// Jobs endpoints
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	// Health check endpoint
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	return middleware.Recovery(cfg.Log)(
		middleware.Logger(cfg.Log)(
			middleware.RequestID(cfg.Log)(
				middleware.CORS(
					middleware.Auth(cfg.APIKey)(mux),
				),
			),
		),
	)
}
