// Package reviewsync mirrors recommendations that need operator attention
// onto a Notion review board. Overridden recommendations and every
// recommendation belonging to a flagged user land on the board; pages are
// keyed by recommendation ID so repeated syncs upsert instead of duplicate.
package reviewsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/store"
)

// Summary counts the outcome of one sync pass.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// SyncRecommendations pushes the review set to the Notion database. A page
// already on the board is updated only when its recommendation carries an
// override, since the override fields are the only mutable part of a
// recommendation; otherwise it is skipped. Per-page failures are logged and
// do not abort the pass.
func SyncRecommendations(ctx context.Context, repo store.Repository, notion NotionService, databaseID string, dryRun bool) (Summary, error) {
	log := logger.FromContext(ctx)
	var sum Summary

	users, err := repo.ListUsers(ctx)
	if err != nil {
		return sum, fmt.Errorf("SyncRecommendations: listing users: %w", err)
	}
	flagged := make(map[string]bool)
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.UserID] = u.Name
		if u.Flagged {
			flagged[u.UserID] = true
		}
	}

	recs, err := repo.ListRecommendations(ctx, store.Filter{})
	if err != nil {
		return sum, fmt.Errorf("SyncRecommendations: listing recommendations: %w", err)
	}
	var review []domain.Recommendation
	for _, rec := range recs {
		if rec.Overridden || flagged[rec.UserID] {
			review = append(review, rec)
		}
	}

	log.Info().
		Bool("dry_run", dryRun).
		Int("recommendations", len(recs)).
		Int("needing_review", len(review)).
		Msg("starting review sync")

	pages, err := queryAllPages(ctx, notion, databaseID)
	if err != nil {
		return sum, fmt.Errorf("SyncRecommendations: %w", err)
	}
	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if recID := extractRecommendationID(page); recID != "" {
			existing[recID] = string(page.ID)
		}
	}

	for i := range review {
		rec := &review[i]
		pageID, onBoard := existing[rec.RecommendationID]

		if onBoard && !rec.Overridden {
			sum.Skipped++
			continue
		}

		if dryRun {
			if onBoard {
				log.Info().
					Str("recommendation_id", rec.RecommendationID).
					Str("page_id", pageID).
					Msg("[dry run] would update review page")
				sum.Updated++
			} else {
				log.Info().
					Str("recommendation_id", rec.RecommendationID).
					Msg("[dry run] would create review page")
				sum.Created++
			}
			continue
		}

		props := RecommendationProperties(rec, names[rec.UserID])
		if onBoard {
			if _, err := notion.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().
					Err(err).
					Str("recommendation_id", rec.RecommendationID).
					Str("page_id", pageID).
					Msg("updating review page failed")
				continue
			}
			sum.Updated++
		} else {
			page, err := notion.CreatePage(ctx, databaseID, props)
			if err != nil {
				log.Warn().
					Err(err).
					Str("recommendation_id", rec.RecommendationID).
					Msg("creating review page failed")
				continue
			}
			existing[rec.RecommendationID] = string(page.ID)
			sum.Created++
		}
	}

	log.Info().
		Int("created", sum.Created).
		Int("updated", sum.Updated).
		Int("skipped", sum.Skipped).
		Msg("review sync completed")
	return sum, nil
}

// queryAllPages queries every page of a Notion database, following the
// pagination cursor until the API reports no more results.
func queryAllPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractRecommendationID reads the Recommendation ID title from a board
// page. Returns empty string if the page carries no usable title.
func extractRecommendationID(page notionapi.Page) string {
	if prop, ok := page.Properties["Recommendation ID"]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}
