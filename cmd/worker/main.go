package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spendsense/spendsense/internal/catalog"
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
	// Initialize logger
	log := logger.New()

	log.Info().Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, store.FromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	cat, err := catalog.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load content catalog")
	}
	runner := pipeline.NewRunner(st, recommend.NewEngine(cat))

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	// Start consuming refresh jobs
	if err := jobQueue.Start(ctx, jobs.RefreshHandler(runner)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
