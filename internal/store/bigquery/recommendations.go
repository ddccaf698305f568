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

const recommendationColumns = `recommendation_id, user_id, type, content_id, title, rationale,
		       decision_trace, shown_at, overridden, override_reason, overridden_by, overridden_at`

// InsertRecommendations appends recommendation records. IDs are freshly
// minted per run, so the delete only fires when a batch is retried.
func (s *Store) InsertRecommendations(ctx context.Context, recs []domain.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]string, len(recs))
	rows := make([]*RecommendationRow, len(recs))
	for i, rec := range recs {
		ids[i] = rec.RecommendationID
		rows[i] = rowFromRecommendation(rec)
	}

	q := s.client.Query(`
		DELETE FROM ` + s.tableSQL(tableRecommendations) + `
		WHERE recommendation_id IN UNNEST(@recommendation_ids)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "recommendation_ids", Value: ids}}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertRecommendations: deleting existing: %w", err)
	}

	if err := s.table(tableRecommendations).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertRecommendations: inserting rows: %w", err)
	}
	return nil
}

// GetRecommendation returns one recommendation or store.ErrNotFound.
func (s *Store) GetRecommendation(ctx context.Context, recommendationID string) (*domain.Recommendation, error) {
	q := s.client.Query(`
		SELECT ` + recommendationColumns + `
		FROM ` + s.tableSQL(tableRecommendations) + `
		WHERE recommendation_id = @recommendation_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "recommendation_id", Value: recommendationID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetRecommendation: query read: %w", err)
	}
	var r RecommendationRow
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetRecommendation: iter next: %w", err)
	}
	rec := r.Recommendation()
	return &rec, nil
}

// ListRecommendations returns recommendations newest first.
func (s *Store) ListRecommendations(ctx context.Context, f store.Filter) ([]domain.Recommendation, error) {
	query := `
		SELECT ` + recommendationColumns + `
		FROM ` + s.tableSQL(tableRecommendations) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	if !f.Start.IsZero() {
		query += " AND shown_at >= @start_ts"
		params = append(params, bigquery.QueryParameter{Name: "start_ts", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		query += " AND shown_at <= @end_ts"
		params = append(params, bigquery.QueryParameter{Name: "end_ts", Value: f.End.UTC()})
	}
	if f.Search != "" {
		query += " AND (LOWER(title) LIKE CONCAT('%', LOWER(@search), '%') OR LOWER(rationale) LIKE CONCAT('%', LOWER(@search), '%'))"
		params = append(params, bigquery.QueryParameter{Name: "search", Value: f.Search})
	}
	query += " ORDER BY shown_at DESC, recommendation_id"

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecommendations: query read: %w", err)
	}
	var recs []domain.Recommendation
	for {
		var r RecommendationRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecommendations: iter next: %w", err)
		}
		recs = append(recs, r.Recommendation())
	}
	return recs, nil
}

// OverrideRecommendation marks a recommendation as operator-overridden.
func (s *Store) OverrideRecommendation(ctx context.Context, recommendationID, reason, overriddenBy string, at time.Time) error {
	if _, err := s.GetRecommendation(ctx, recommendationID); err != nil {
		return err
	}
	q := s.client.Query(`
		UPDATE ` + s.tableSQL(tableRecommendations) + `
		SET overridden = TRUE,
		    override_reason = @reason,
		    overridden_by = @overridden_by,
		    overridden_at = @overridden_at
		WHERE recommendation_id = @recommendation_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "reason", Value: reason},
		{Name: "overridden_by", Value: overriddenBy},
		{Name: "overridden_at", Value: at.UTC()},
		{Name: "recommendation_id", Value: recommendationID},
	}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("OverrideRecommendation: updating %s: %w", recommendationID, err)
	}
	return nil
}

// InsertChatLog appends one chat exchange.
func (s *Store) InsertChatLog(ctx context.Context, log *domain.ChatLog) error {
	if err := s.table(tableChatLogs).Inserter().Put(ctx, rowFromChatLog(*log)); err != nil {
		return fmt.Errorf("InsertChatLog: inserting %s: %w", log.ChatID, err)
	}
	return nil
}

// GetChatLog returns one chat exchange or store.ErrNotFound.
func (s *Store) GetChatLog(ctx context.Context, chatID string) (*domain.ChatLog, error) {
	q := s.client.Query(`
		SELECT chat_id, user_id, message, response, citations, guardrails_passed, created_at
		FROM ` + s.tableSQL(tableChatLogs) + `
		WHERE chat_id = @chat_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "chat_id", Value: chatID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetChatLog: query read: %w", err)
	}
	var r ChatLogRow
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetChatLog: iter next: %w", err)
	}
	cl := r.ChatLog()
	return &cl, nil
}

// ListChatLogs returns chat exchanges oldest first.
func (s *Store) ListChatLogs(ctx context.Context, f store.Filter) ([]domain.ChatLog, error) {
	query := `
		SELECT chat_id, user_id, message, response, citations, guardrails_passed, created_at
		FROM ` + s.tableSQL(tableChatLogs) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	if !f.Start.IsZero() {
		query += " AND created_at >= @start_ts"
		params = append(params, bigquery.QueryParameter{Name: "start_ts", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		query += " AND created_at <= @end_ts"
		params = append(params, bigquery.QueryParameter{Name: "end_ts", Value: f.End.UTC()})
	}
	if f.Search != "" {
		query += " AND (LOWER(message) LIKE CONCAT('%', LOWER(@search), '%') OR LOWER(response) LIKE CONCAT('%', LOWER(@search), '%'))"
		params = append(params, bigquery.QueryParameter{Name: "search", Value: f.Search})
	}
	query += " ORDER BY created_at, chat_id"

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListChatLogs: query read: %w", err)
	}
	var logs []domain.ChatLog
	for {
		var r ChatLogRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListChatLogs: iter next: %w", err)
		}
		logs = append(logs, r.ChatLog())
	}
	return logs, nil
}

// InsertOperatorAction appends one operator intervention.
func (s *Store) InsertOperatorAction(ctx context.Context, action *domain.OperatorAction) error {
	if err := s.table(tableActions).Inserter().Put(ctx, rowFromAction(*action)); err != nil {
		return fmt.Errorf("InsertOperatorAction: inserting %s: %w", action.ActionID, err)
	}
	return nil
}

// GetOperatorAction returns one operator intervention or store.ErrNotFound.
func (s *Store) GetOperatorAction(ctx context.Context, actionID string) (*domain.OperatorAction, error) {
	q := s.client.Query(`
		SELECT action_id, user_id, operator_id, action_type, recommendation_id, reason, created_at
		FROM ` + s.tableSQL(tableActions) + `
		WHERE action_id = @action_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "action_id", Value: actionID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetOperatorAction: query read: %w", err)
	}
	var r ActionRow
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetOperatorAction: iter next: %w", err)
	}
	a := r.Action()
	return &a, nil
}

// ListOperatorActions returns operator interventions oldest first.
func (s *Store) ListOperatorActions(ctx context.Context, f store.Filter) ([]domain.OperatorAction, error) {
	query := `
		SELECT action_id, user_id, operator_id, action_type, recommendation_id, reason, created_at
		FROM ` + s.tableSQL(tableActions) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	if !f.Start.IsZero() {
		query += " AND created_at >= @start_ts"
		params = append(params, bigquery.QueryParameter{Name: "start_ts", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		query += " AND created_at <= @end_ts"
		params = append(params, bigquery.QueryParameter{Name: "end_ts", Value: f.End.UTC()})
	}
	if f.Search != "" {
		query += " AND LOWER(reason) LIKE CONCAT('%', LOWER(@search), '%')"
		params = append(params, bigquery.QueryParameter{Name: "search", Value: f.Search})
	}
	query += " ORDER BY created_at, action_id"

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListOperatorActions: query read: %w", err)
	}
	var actions []domain.OperatorAction
	for {
		var r ActionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListOperatorActions: iter next: %w", err)
		}
		actions = append(actions, r.Action())
	}
	return actions, nil
}
