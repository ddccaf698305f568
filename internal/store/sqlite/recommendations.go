package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// InsertRecommendations appends recommendation records. Each run mints fresh
// recommendation IDs, so history accumulates instead of being replaced.
func (s *Store) InsertRecommendations(ctx context.Context, recs []domain.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	return s.execTx(ctx, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx, `
			DELETE FROM recommendations WHERE recommendation_id = ?
		`)
		if err != nil {
			return fmt.Errorf("InsertRecommendations: preparing delete: %w", err)
		}
		defer del.Close()
		ins, err := tx.PrepareContext(ctx, `
			INSERT INTO recommendations
				(recommendation_id, user_id, type, content_id, title, rationale, decision_trace, shown_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("InsertRecommendations: preparing insert: %w", err)
		}
		defer ins.Close()

		for _, rec := range recs {
			trace := string(rec.DecisionTrace)
			if trace == "" {
				trace = "{}"
			}
			if _, err := del.ExecContext(ctx, rec.RecommendationID); err != nil {
				return fmt.Errorf("InsertRecommendations: deleting %s: %w", rec.RecommendationID, err)
			}
			_, err := ins.ExecContext(ctx,
				rec.RecommendationID, rec.UserID, string(rec.Type), rec.ContentID,
				rec.Title, rec.Rationale, trace, formatTime(rec.ShownAt),
			)
			if err != nil {
				return fmt.Errorf("InsertRecommendations: inserting %s: %w", rec.RecommendationID, err)
			}
		}
		return nil
	})
}

// GetRecommendation returns one recommendation or store.ErrNotFound.
func (s *Store) GetRecommendation(ctx context.Context, recommendationID string) (*domain.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, recommendationSelect+` WHERE recommendation_id = ?`, recommendationID)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetRecommendation: %s: %w", recommendationID, err)
	}
	return rec, nil
}

// ListRecommendations returns recommendations newest first.
func (s *Store) ListRecommendations(ctx context.Context, f store.Filter) ([]domain.Recommendation, error) {
	query := recommendationSelect + ` WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		query += " AND shown_at >= ?"
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND shown_at <= ?"
		args = append(args, formatTime(f.End))
	}
	if f.Search != "" {
		query += " AND (title LIKE ? OR rationale LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	query += " ORDER BY shown_at DESC, recommendation_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListRecommendations: querying: %w", err)
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecommendations: scanning: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// OverrideRecommendation marks a recommendation as operator-overridden. These
// four columns are the only mutation recommendations ever receive.
func (s *Store) OverrideRecommendation(ctx context.Context, recommendationID, reason, overriddenBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET overridden = 1, override_reason = ?, overridden_by = ?, overridden_at = ?
		WHERE recommendation_id = ?
	`, reason, overriddenBy, formatTime(at), recommendationID)
	if err != nil {
		return fmt.Errorf("OverrideRecommendation: updating %s: %w", recommendationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("OverrideRecommendation: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const recommendationSelect = `
	SELECT recommendation_id, user_id, type, content_id, title, rationale,
	       decision_trace, shown_at, overridden, override_reason, overridden_by, overridden_at
	FROM recommendations`

func scanRecommendation(row rowScanner) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var recType, trace, shownAt string
	var overridden int
	var overriddenAt sql.NullString
	err := row.Scan(&rec.RecommendationID, &rec.UserID, &recType, &rec.ContentID,
		&rec.Title, &rec.Rationale, &trace, &shownAt,
		&overridden, &rec.OverrideReason, &rec.OverriddenBy, &overriddenAt)
	if err != nil {
		return nil, err
	}
	rec.Type = domain.RecommendationType(recType)
	rec.DecisionTrace = json.RawMessage(trace)
	rec.ShownAt = parseTime(shownAt)
	rec.Overridden = overridden != 0
	if overriddenAt.Valid && overriddenAt.String != "" {
		t := parseTime(overriddenAt.String)
		rec.OverriddenAt = &t
	}
	return &rec, nil
}

// InsertChatLog appends one chat exchange.
func (s *Store) InsertChatLog(ctx context.Context, log *domain.ChatLog) error {
	var citations any
	if len(log.Citations) > 0 {
		citations = string(log.Citations)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_logs (chat_id, user_id, message, response, citations, guardrails_passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.ChatID, log.UserID, log.Message, log.Response, citations, boolToInt(log.GuardrailsPassed), formatTime(log.CreatedAt))
	if err != nil {
		return fmt.Errorf("InsertChatLog: inserting %s: %w", log.ChatID, err)
	}
	return nil
}

// GetChatLog returns one chat exchange or store.ErrNotFound.
func (s *Store) GetChatLog(ctx context.Context, chatID string) (*domain.ChatLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, user_id, message, response, citations, guardrails_passed, created_at
		FROM chat_logs WHERE chat_id = ?
	`, chatID)
	var cl domain.ChatLog
	var citations sql.NullString
	var passed int
	var createdAt string
	err := row.Scan(&cl.ChatID, &cl.UserID, &cl.Message, &cl.Response, &citations, &passed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetChatLog: %s: %w", chatID, err)
	}
	if citations.Valid && citations.String != "" {
		cl.Citations = json.RawMessage(citations.String)
	}
	cl.GuardrailsPassed = passed != 0
	cl.CreatedAt = parseTime(createdAt)
	return &cl, nil
}

// ListChatLogs returns chat exchanges oldest first.
func (s *Store) ListChatLogs(ctx context.Context, f store.Filter) ([]domain.ChatLog, error) {
	query := `
		SELECT chat_id, user_id, message, response, citations, guardrails_passed, created_at
		FROM chat_logs WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, formatTime(f.End))
	}
	if f.Search != "" {
		query += " AND (message LIKE ? OR response LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	query += " ORDER BY created_at, chat_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListChatLogs: querying: %w", err)
	}
	defer rows.Close()

	var logs []domain.ChatLog
	for rows.Next() {
		var cl domain.ChatLog
		var citations sql.NullString
		var passed int
		var createdAt string
		if err := rows.Scan(&cl.ChatID, &cl.UserID, &cl.Message, &cl.Response, &citations, &passed, &createdAt); err != nil {
			return nil, fmt.Errorf("ListChatLogs: scanning: %w", err)
		}
		if citations.Valid && citations.String != "" {
			cl.Citations = json.RawMessage(citations.String)
		}
		cl.GuardrailsPassed = passed != 0
		cl.CreatedAt = parseTime(createdAt)
		logs = append(logs, cl)
	}
	return logs, rows.Err()
}

// InsertOperatorAction appends one operator intervention.
func (s *Store) InsertOperatorAction(ctx context.Context, action *domain.OperatorAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_actions (action_id, user_id, operator_id, action_type, recommendation_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, action.ActionID, action.UserID, action.OperatorID, action.ActionType, action.RecommendationID, action.Reason, formatTime(action.CreatedAt))
	if err != nil {
		return fmt.Errorf("InsertOperatorAction: inserting %s: %w", action.ActionID, err)
	}
	return nil
}

// GetOperatorAction returns one operator intervention or store.ErrNotFound.
func (s *Store) GetOperatorAction(ctx context.Context, actionID string) (*domain.OperatorAction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT action_id, user_id, operator_id, action_type, recommendation_id, reason, created_at
		FROM operator_actions WHERE action_id = ?
	`, actionID)
	var a domain.OperatorAction
	var createdAt string
	err := row.Scan(&a.ActionID, &a.UserID, &a.OperatorID, &a.ActionType, &a.RecommendationID, &a.Reason, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetOperatorAction: %s: %w", actionID, err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ListOperatorActions returns operator interventions oldest first.
func (s *Store) ListOperatorActions(ctx context.Context, f store.Filter) ([]domain.OperatorAction, error) {
	query := `
		SELECT action_id, user_id, operator_id, action_type, recommendation_id, reason, created_at
		FROM operator_actions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, formatTime(f.End))
	}
	if f.Search != "" {
		query += " AND reason LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	query += " ORDER BY created_at, action_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListOperatorActions: querying: %w", err)
	}
	defer rows.Close()

	var actions []domain.OperatorAction
	for rows.Next() {
		var a domain.OperatorAction
		var createdAt string
		if err := rows.Scan(&a.ActionID, &a.UserID, &a.OperatorID, &a.ActionType, &a.RecommendationID, &a.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("ListOperatorActions: scanning: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
