package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/reviewsync"
	"github.com/spendsense/spendsense/internal/store"

	_ "github.com/spendsense/spendsense/internal/store/bigquery"
	_ "github.com/spendsense/spendsense/internal/store/sqlite"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	notionToken := flag.String("notion-token", os.Getenv("NOTION_API_KEY"), "Notion API token (or set NOTION_API_KEY env)")
	notionDBID := flag.String("notion-db-id", os.Getenv("NOTION_REVIEW_DB"), "Notion review board database ID (or set NOTION_REVIEW_DB env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Validate required flags
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	log.Info().Bool("dry_run", *dryRun).Msg("Starting review board sync")

	st, err := store.Open(ctx, store.FromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	// Initialize Notion client
	notionClient := reviewsync.NewNotionClient(*notionToken)

	// Sync recommendations needing review
	summary, err := reviewsync.SyncRecommendations(ctx, st, notionClient, *notionDBID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d skipped.\n",
		summary.Created, summary.Updated, summary.Skipped)
}
