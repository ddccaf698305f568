package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// LatestPersonaCounts groups the freshest assignment per user by persona.
// The ROW_NUMBER dedup keeps the count honest when the streaming buffer has
// blocked a delete and left stale rows behind.
func (s *Store) LatestPersonaCounts(ctx context.Context, window domain.TimeWindow) (map[domain.Persona]int, error) {
	q := s.client.Query(`
		SELECT persona, COUNT(*) AS n
		FROM (
			SELECT persona,
			       ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY assigned_at DESC) AS rn
			FROM ` + s.tableSQL(tableAssignments) + `
			WHERE time_window = @time_window
		)
		WHERE rn = 1
		GROUP BY persona
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "time_window", Value: string(window)}}
	return s.queryPersonaCounts(ctx, q, "LatestPersonaCounts")
}

// PersonaCountsBetween groups assignments whose assigned_at falls in
// [start, end), one per user.
func (s *Store) PersonaCountsBetween(ctx context.Context, window domain.TimeWindow, start, end time.Time) (map[domain.Persona]int, error) {
	q := s.client.Query(`
		SELECT persona, COUNT(*) AS n
		FROM (
			SELECT persona,
			       ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY assigned_at DESC) AS rn
			FROM ` + s.tableSQL(tableAssignments) + `
			WHERE time_window = @time_window
			  AND assigned_at >= @start_ts
			  AND assigned_at < @end_ts
		)
		WHERE rn = 1
		GROUP BY persona
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "time_window", Value: string(window)},
		{Name: "start_ts", Value: start.UTC()},
		{Name: "end_ts", Value: end.UTC()},
	}
	return s.queryPersonaCounts(ctx, q, "PersonaCountsBetween")
}

func (s *Store) queryPersonaCounts(ctx context.Context, q *bigquery.Query, op string) (map[domain.Persona]int, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}
	counts := make(map[domain.Persona]int)
	for {
		var r struct {
			Persona string `bigquery:"persona"`
			N       int64  `bigquery:"n"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		counts[domain.Persona(r.Persona)] = int(r.N)
	}
	return counts, nil
}

// PersonaUserIDs returns the users whose current assignment in a window is
// the given persona.
func (s *Store) PersonaUserIDs(ctx context.Context, window domain.TimeWindow, persona domain.Persona) ([]string, error) {
	q := s.client.Query(`
		SELECT user_id
		FROM (
			SELECT user_id, persona,
			       ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY assigned_at DESC) AS rn
			FROM ` + s.tableSQL(tableAssignments) + `
			WHERE time_window = @time_window
		)
		WHERE rn = 1 AND persona = @persona
		ORDER BY user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "time_window", Value: string(window)},
		{Name: "persona", Value: string(persona)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("PersonaUserIDs: query read: %w", err)
	}
	var ids []string
	for {
		var r struct {
			UserID string `bigquery:"user_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("PersonaUserIDs: iter next: %w", err)
		}
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// ActiveUserCount counts distinct users with a chat exchange, an operator
// action, or a shown recommendation since the cutoff.
func (s *Store) ActiveUserCount(ctx context.Context, since time.Time) (int, error) {
	q := s.client.Query(`
		SELECT COUNT(*) AS n
		FROM (
			SELECT user_id FROM ` + s.tableSQL(tableChatLogs) + ` WHERE created_at >= @since
			UNION DISTINCT
			SELECT user_id FROM ` + s.tableSQL(tableActions) + ` WHERE created_at >= @since
			UNION DISTINCT
			SELECT user_id FROM ` + s.tableSQL(tableRecommendations) + ` WHERE shown_at >= @since
		)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "since", Value: since.UTC()}}
	n, err := s.queryInt(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("ActiveUserCount: %w", err)
	}
	return n, nil
}

// RecommendationCounts totals recommendations and overrides, optionally
// restricted to a set of users. A nil or empty slice means all users.
func (s *Store) RecommendationCounts(ctx context.Context, userIDs []string) (store.RecommendationCounts, error) {
	query := `
		SELECT COUNT(*) AS total, COUNTIF(overridden) AS flagged
		FROM ` + s.tableSQL(tableRecommendations)
	var params []bigquery.QueryParameter
	if len(userIDs) > 0 {
		query += ` WHERE user_id IN UNNEST(@user_ids)`
		params = append(params, bigquery.QueryParameter{Name: "user_ids", Value: userIDs})
	}

	q := s.client.Query(query)
	q.Parameters = params
	total, flagged, err := s.queryPair(ctx, q)
	if err != nil {
		return store.RecommendationCounts{}, fmt.Errorf("RecommendationCounts: %w", err)
	}
	return store.RecommendationCounts{Total: total, Overridden: flagged}, nil
}

// ChatCounts totals chat exchanges and guardrail passes, optionally
// restricted to a set of users. A nil or empty slice means all users.
func (s *Store) ChatCounts(ctx context.Context, userIDs []string) (store.ChatCounts, error) {
	query := `
		SELECT COUNT(*) AS total, COUNTIF(guardrails_passed) AS flagged
		FROM ` + s.tableSQL(tableChatLogs)
	var params []bigquery.QueryParameter
	if len(userIDs) > 0 {
		query += ` WHERE user_id IN UNNEST(@user_ids)`
		params = append(params, bigquery.QueryParameter{Name: "user_ids", Value: userIDs})
	}

	q := s.client.Query(query)
	q.Parameters = params
	total, passed, err := s.queryPair(ctx, q)
	if err != nil {
		return store.ChatCounts{}, fmt.Errorf("ChatCounts: %w", err)
	}
	return store.ChatCounts{Total: total, GuardrailsPassed: passed}, nil
}

// FlaggedUserCount counts users currently flagged for review.
func (s *Store) FlaggedUserCount(ctx context.Context) (int, error) {
	q := s.client.Query(`SELECT COUNTIF(flagged) AS n FROM ` + s.tableSQL(tableUsers))
	n, err := s.queryInt(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("FlaggedUserCount: %w", err)
	}
	return n, nil
}

// UserCount counts all users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	q := s.client.Query(`SELECT COUNT(*) AS n FROM ` + s.tableSQL(tableUsers))
	n, err := s.queryInt(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("UserCount: %w", err)
	}
	return n, nil
}

// queryInt reads a single-row, single-column count aliased AS n.
func (s *Store) queryInt(ctx context.Context, q *bigquery.Query) (int, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("query read: %w", err)
	}
	var r struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&r); err != nil {
		return 0, fmt.Errorf("iter next: %w", err)
	}
	return int(r.N), nil
}

// queryPair reads a single row holding columns total and flagged.
func (s *Store) queryPair(ctx context.Context, q *bigquery.Query) (total, flagged int, err error) {
	it, err := q.Read(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("query read: %w", err)
	}
	var r struct {
		Total   int64 `bigquery:"total"`
		Flagged int64 `bigquery:"flagged"`
	}
	if err := it.Next(&r); err != nil {
		return 0, 0, fmt.Errorf("iter next: %w", err)
	}
	return int(r.Total), int(r.Flagged), nil
}
