package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// LatestPersonaCounts groups current assignments by persona. The primary key
// on (user_id, time_window) already guarantees one row per user, so a plain
// GROUP BY is the latest snapshot.
func (s *Store) LatestPersonaCounts(ctx context.Context, window domain.TimeWindow) (map[domain.Persona]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT persona, COUNT(*)
		FROM persona_assignments
		WHERE time_window = ?
		GROUP BY persona
	`, string(window))
	if err != nil {
		return nil, fmt.Errorf("LatestPersonaCounts: querying: %w", err)
	}
	defer rows.Close()
	return scanPersonaCounts(rows)
}

// PersonaCountsBetween groups assignments whose assigned_at falls in
// [start, end). Callers step this across weeks to build trend series.
func (s *Store) PersonaCountsBetween(ctx context.Context, window domain.TimeWindow, start, end time.Time) (map[domain.Persona]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT persona, COUNT(*)
		FROM persona_assignments
		WHERE time_window = ? AND assigned_at >= ? AND assigned_at < ?
		GROUP BY persona
	`, string(window), formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("PersonaCountsBetween: querying: %w", err)
	}
	defer rows.Close()
	return scanPersonaCounts(rows)
}

func scanPersonaCounts(rows *sql.Rows) (map[domain.Persona]int, error) {
	counts := make(map[domain.Persona]int)
	for rows.Next() {
		var persona string
		var n int
		if err := rows.Scan(&persona, &n); err != nil {
			return nil, fmt.Errorf("scanning persona count: %w", err)
		}
		counts[domain.Persona(persona)] = n
	}
	return counts, rows.Err()
}

// PersonaUserIDs returns the users currently assigned a persona in a window.
func (s *Store) PersonaUserIDs(ctx context.Context, window domain.TimeWindow, persona domain.Persona) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id
		FROM persona_assignments
		WHERE time_window = ? AND persona = ?
		ORDER BY user_id
	`, string(window), string(persona))
	if err != nil {
		return nil, fmt.Errorf("PersonaUserIDs: querying: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("PersonaUserIDs: scanning: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveUserCount counts distinct users with any recorded activity since the
// cutoff: a chat exchange, an operator touching their account, or a
// recommendation shown to them.
func (s *Store) ActiveUserCount(ctx context.Context, since time.Time) (int, error) {
	cutoff := formatTime(since)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT user_id FROM chat_logs WHERE created_at >= ?
			UNION
			SELECT user_id FROM operator_actions WHERE created_at >= ?
			UNION
			SELECT user_id FROM recommendations WHERE shown_at >= ?
		)
	`, cutoff, cutoff, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ActiveUserCount: querying: %w", err)
	}
	return n, nil
}

// RecommendationCounts totals recommendations and overrides, optionally
// restricted to a set of users. A nil or empty slice means all users.
func (s *Store) RecommendationCounts(ctx context.Context, userIDs []string) (store.RecommendationCounts, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(overridden), 0) FROM recommendations`
	var args []any
	if len(userIDs) > 0 {
		query += " WHERE user_id IN (" + inPlaceholders(len(userIDs)) + ")"
		for _, id := range userIDs {
			args = append(args, id)
		}
	}
	var counts store.RecommendationCounts
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&counts.Total, &counts.Overridden); err != nil {
		return store.RecommendationCounts{}, fmt.Errorf("RecommendationCounts: querying: %w", err)
	}
	return counts, nil
}

// ChatCounts totals chat exchanges and how many passed guardrails, optionally
// restricted to a set of users. A nil or empty slice means all users.
func (s *Store) ChatCounts(ctx context.Context, userIDs []string) (store.ChatCounts, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(guardrails_passed), 0) FROM chat_logs`
	var args []any
	if len(userIDs) > 0 {
		query += " WHERE user_id IN (" + inPlaceholders(len(userIDs)) + ")"
		for _, id := range userIDs {
			args = append(args, id)
		}
	}
	var counts store.ChatCounts
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&counts.Total, &counts.GuardrailsPassed); err != nil {
		return store.ChatCounts{}, fmt.Errorf("ChatCounts: querying: %w", err)
	}
	return counts, nil
}

// FlaggedUserCount counts users currently flagged for review.
func (s *Store) FlaggedUserCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE flagged = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("FlaggedUserCount: querying: %w", err)
	}
	return n, nil
}

// UserCount counts all users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("UserCount: querying: %w", err)
	}
	return n, nil
}
