package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spendsense/spendsense/internal/api"
	"github.com/spendsense/spendsense/internal/catalog"
	"github.com/spendsense/spendsense/internal/chat"
	"github.com/spendsense/spendsense/internal/jobs"
	"github.com/spendsense/spendsense/internal/jobs/inmemory"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/pipeline"
	"github.com/spendsense/spendsense/internal/recommend"
	"github.com/spendsense/spendsense/internal/store"

	_ "github.com/spendsense/spendsense/internal/store/bigquery"
	_ "github.com/spendsense/spendsense/internal/store/sqlite"
)

func main() {
	// Parse command-line flags
	var (
		port      = flag.String("port", "8080", "HTTP server port")
		apiKey    = flag.String("api-key", os.Getenv("SPENDSENSE_API_KEY"), "shared API key (or set SPENDSENSE_API_KEY env)")
		chatModel = flag.String("chat-model", "", "Gemini model for the chat endpoint (empty selects the default)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	if *apiKey == "" {
		log.Warn().Msg("No API key configured - authentication is disabled")
	}

	// Open the configured store backend
	ctx := context.Background()

	st, err := store.Open(ctx, store.FromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	// Start worker in background to process refresh jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	cat, err := catalog.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load content catalog")
	}
	runner := pipeline.NewRunner(st, recommend.NewEngine(cat))

	go func() {
		log.Info().Msg("Starting refresh worker")
		if err := jobQueue.Start(workerCtx, jobs.RefreshHandler(runner)); err != nil {
			log.Error().Err(err).Msg("Refresh worker stopped with error")
		}
	}()

	// The chat endpoint needs a Gemini credential; without one the API
	// still serves everything else.
	var chatSvc *chat.Service
	if os.Getenv("GEMINI_API_KEY") != "" {
		gen, err := chat.NewGemini(ctx, *chatModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create chat generator")
		}
		chatSvc = chat.NewService(st, gen)
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set - chat endpoint is disabled")
	}

	handler := api.NewHandler(api.Config{
		Store:     st,
		Publisher: jobQueue,
		Jobs:      jobStore,
		Chat:      chatSvc,
		APIKey:    *apiKey,
		Log:       log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
