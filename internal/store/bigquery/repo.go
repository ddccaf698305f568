package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// UpsertUsers replaces the rows for the given user IDs and streams the new
// ones in.
func (s *Store) UpsertUsers(ctx context.Context, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, len(users))
	rows := make([]*UserRow, len(users))
	for i, u := range users {
		ids[i] = u.UserID
		rows[i] = rowFromUser(u)
	}

	q := s.client.Query(`
		DELETE FROM ` + s.tableSQL(tableUsers) + `
		WHERE user_id IN UNNEST(@user_ids)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "user_ids", Value: ids}}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertUsers: deleting existing: %w", err)
	}

	if err := s.table(tableUsers).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("UpsertUsers: inserting rows: %w", err)
	}
	return nil
}

// GetUser returns one user or store.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	q := s.client.Query(`
		SELECT user_id, name, flagged, created_at
		FROM ` + s.tableSQL(tableUsers) + `
		WHERE user_id = @user_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetUser: query read: %w", err)
	}
	var r UserRow
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetUser: iter next: %w", err)
	}
	u := r.User()
	return &u, nil
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	q := s.client.Query(`
		SELECT user_id, name, flagged, created_at
		FROM ` + s.tableSQL(tableUsers) + `
		ORDER BY user_id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: query read: %w", err)
	}
	var users []domain.User
	for {
		var r UserRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUsers: iter next: %w", err)
		}
		users = append(users, r.User())
	}
	return users, nil
}

// SetUserFlagged toggles the review flag on a user.
func (s *Store) SetUserFlagged(ctx context.Context, userID string, flagged bool) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	q := s.client.Query(`
		UPDATE ` + s.tableSQL(tableUsers) + `
		SET flagged = @flagged
		WHERE user_id = @user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "flagged", Value: flagged},
		{Name: "user_id", Value: userID},
	}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("SetUserFlagged: updating %s: %w", userID, err)
	}
	return nil
}

// UpsertAccounts replaces the rows for the given account IDs.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]string, len(accounts))
	rows := make([]*AccountRow, len(accounts))
	for i, a := range accounts {
		ids[i] = a.AccountID
		rows[i] = rowFromAccount(a)
	}

	q := s.client.Query(`
		DELETE FROM ` + s.tableSQL(tableAccounts) + `
		WHERE account_id IN UNNEST(@account_ids)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "account_ids", Value: ids}}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertAccounts: deleting existing: %w", err)
	}

	if err := s.table(tableAccounts).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("UpsertAccounts: inserting rows: %w", err)
	}
	return nil
}

// ListAccounts returns accounts, optionally for a single user.
func (s *Store) ListAccounts(ctx context.Context, f store.Filter) ([]domain.Account, error) {
	query := `
		SELECT account_id, user_id, type, subtype, name, mask, balance, credit_limit
		FROM ` + s.tableSQL(tableAccounts) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	query += " ORDER BY user_id, account_id"

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: query read: %w", err)
	}
	var accounts []domain.Account
	for {
		var r AccountRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: iter next: %w", err)
		}
		accounts = append(accounts, r.Account())
	}
	return accounts, nil
}

// InsertTransactions writes transactions, replacing any rows that already
// carry the same IDs so reseeding stays idempotent.
func (s *Store) InsertTransactions(ctx context.Context, txns []domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	ids := make([]string, len(txns))
	rows := make([]*TransactionRow, len(txns))
	for i, t := range txns {
		ids[i] = t.TransactionID
		rows[i] = rowFromTransaction(t)
	}

	q := s.client.Query(`
		DELETE FROM ` + s.tableSQL(tableTransactions) + `
		WHERE transaction_id IN UNNEST(@transaction_ids)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "transaction_ids", Value: ids}}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertTransactions: deleting existing: %w", err)
	}

	if err := s.table(tableTransactions).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// ListTransactions returns transactions ordered by date.
func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]domain.Transaction, error) {
	query := `
		SELECT transaction_id, account_id, user_id, date, amount, merchant_name,
		       category, pending, payment_channel, authorized_date
		FROM ` + s.tableSQL(tableTransactions) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	if !f.Start.IsZero() {
		query += " AND date >= @start_date"
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: civil.DateOf(f.Start.UTC())})
	}
	if !f.End.IsZero() {
		query += " AND date <= @end_date"
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: civil.DateOf(f.End.UTC())})
	}
	if f.Search != "" {
		query += " AND LOWER(merchant_name) LIKE CONCAT('%', LOWER(@search), '%')"
		params = append(params, bigquery.QueryParameter{Name: "search", Value: f.Search})
	}
	query += " ORDER BY date, transaction_id"

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}
	var txns []domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		txns = append(txns, r.Transaction())
	}
	return txns, nil
}

// UpsertSignals replaces the rows for each (user, window, type) key present
// in the batch.
func (s *Store) UpsertSignals(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	keys := make([]string, len(signals))
	rows := make([]*SignalRow, len(signals))
	for i, sig := range signals {
		keys[i] = sig.UserID + ":" + string(sig.TimeWindow) + ":" + string(sig.SignalType)
		rows[i] = rowFromSignal(sig)
	}

	q := s.client.Query(`
		DELETE FROM ` + s.tableSQL(tableSignals) + `
		WHERE CONCAT(user_id, ':', time_window, ':', signal_type) IN UNNEST(@keys)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "keys", Value: keys}}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertSignals: deleting existing: %w", err)
	}

	if err := s.table(tableSignals).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("UpsertSignals: inserting rows: %w", err)
	}
	return nil
}

// ListSignals returns signal rows, keeping only the freshest row per key in
// case a delete raced the streaming buffer.
func (s *Store) ListSignals(ctx context.Context, f store.Filter) ([]domain.Signal, error) {
	query := `
		SELECT user_id, time_window, signal_type, signal_data, computed_at
		FROM ` + s.tableSQL(tableSignals) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	if f.Window != "" {
		query += " AND time_window = @time_window"
		params = append(params, bigquery.QueryParameter{Name: "time_window", Value: string(f.Window)})
	}
	if !f.Start.IsZero() {
		query += " AND computed_at >= @start_ts"
		params = append(params, bigquery.QueryParameter{Name: "start_ts", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		query += " AND computed_at <= @end_ts"
		params = append(params, bigquery.QueryParameter{Name: "end_ts", Value: f.End.UTC()})
	}
	if f.Search != "" {
		query += " AND signal_type LIKE CONCAT('%', @search, '%')"
		params = append(params, bigquery.QueryParameter{Name: "search", Value: f.Search})
	}
	query += `
		QUALIFY ROW_NUMBER() OVER (PARTITION BY user_id, time_window, signal_type ORDER BY computed_at DESC) = 1
		ORDER BY user_id, time_window, signal_type`

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSignals: query read: %w", err)
	}
	var out []domain.Signal
	for {
		var r SignalRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSignals: iter next: %w", err)
		}
		out = append(out, r.Signal())
	}
	return out, nil
}

// UpsertAssignments replaces the row for each (user, window) key present in
// the batch.
func (s *Store) UpsertAssignments(ctx context.Context, assignments []domain.PersonaAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	keys := make([]string, len(assignments))
	rows := make([]*AssignmentRow, len(assignments))
	for i, a := range assignments {
		keys[i] = a.UserID + ":" + string(a.TimeWindow)
		rows[i] = rowFromAssignment(a)
	}

	q := s.client.Query(`
		DELETE FROM ` + s.tableSQL(tableAssignments) + `
		WHERE CONCAT(user_id, ':', time_window) IN UNNEST(@keys)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "keys", Value: keys}}
	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertAssignments: deleting existing: %w", err)
	}

	if err := s.table(tableAssignments).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("UpsertAssignments: inserting rows: %w", err)
	}
	return nil
}

const assignmentColumns = `user_id, time_window, persona, criteria_met,
		       match_high_utilization, match_variable_income, match_subscription_heavy,
		       match_savings_builder, match_general_wellness, assigned_at`

// GetAssignment returns the current assignment for a user and window, or
// store.ErrNotFound.
func (s *Store) GetAssignment(ctx context.Context, userID string, window domain.TimeWindow) (*domain.PersonaAssignment, error) {
	q := s.client.Query(`
		SELECT ` + assignmentColumns + `
		FROM ` + s.tableSQL(tableAssignments) + `
		WHERE user_id = @user_id AND time_window = @time_window
		ORDER BY assigned_at DESC
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "time_window", Value: string(window)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAssignment: query read: %w", err)
	}
	var r AssignmentRow
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetAssignment: iter next: %w", err)
	}
	a := r.Assignment()
	return &a, nil
}

// ListAssignments returns current assignments, one row per (user, window).
func (s *Store) ListAssignments(ctx context.Context, f store.Filter) ([]domain.PersonaAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM ` + s.tableSQL(tableAssignments) + `
		WHERE 1=1`
	var params []bigquery.QueryParameter
	if f.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: f.UserID})
	}
	if f.Window != "" {
		query += " AND time_window = @time_window"
		params = append(params, bigquery.QueryParameter{Name: "time_window", Value: string(f.Window)})
	}
	if !f.Start.IsZero() {
		query += " AND assigned_at >= @start_ts"
		params = append(params, bigquery.QueryParameter{Name: "start_ts", Value: f.Start.UTC()})
	}
	if !f.End.IsZero() {
		query += " AND assigned_at <= @end_ts"
		params = append(params, bigquery.QueryParameter{Name: "end_ts", Value: f.End.UTC()})
	}
	if f.Search != "" {
		query += " AND persona LIKE CONCAT('%', @search, '%')"
		params = append(params, bigquery.QueryParameter{Name: "search", Value: f.Search})
	}
	query += `
		QUALIFY ROW_NUMBER() OVER (PARTITION BY user_id, time_window ORDER BY assigned_at DESC) = 1
		ORDER BY user_id, time_window`

	q := s.client.Query(query)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAssignments: query read: %w", err)
	}
	var out []domain.PersonaAssignment
	for {
		var r AssignmentRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAssignments: iter next: %w", err)
		}
		out = append(out, r.Assignment())
	}
	return out, nil
}
