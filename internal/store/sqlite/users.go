package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// UpsertUsers inserts or replaces user profiles keyed by user_id.
func (s *Store) UpsertUsers(ctx context.Context, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	return s.execTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO users (user_id, name, flagged, created_at)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("UpsertUsers: preparing: %w", err)
		}
		defer stmt.Close()
		for _, u := range users {
			if _, err := stmt.ExecContext(ctx, u.UserID, u.Name, boolToInt(u.Flagged), formatTime(u.CreatedAt)); err != nil {
				return fmt.Errorf("UpsertUsers: inserting %s: %w", u.UserID, err)
			}
		}
		return nil
	})
}

// GetUser returns one user or store.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, flagged, created_at FROM users WHERE user_id = ?
	`, userID)

	var u domain.User
	var flagged int
	var createdAt string
	if err := row.Scan(&u.UserID, &u.Name, &flagged, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetUser: scanning %s: %w", userID, err)
	}
	u.Flagged = flagged != 0
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// ListUsers returns every user ordered by user_id.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, flagged, created_at FROM users ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: querying: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var flagged int
		var createdAt string
		if err := rows.Scan(&u.UserID, &u.Name, &flagged, &createdAt); err != nil {
			return nil, fmt.Errorf("ListUsers: scanning: %w", err)
		}
		u.Flagged = flagged != 0
		u.CreatedAt = parseTime(createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserFlagged flips the operator-review flag on a user.
func (s *Store) SetUserFlagged(ctx context.Context, userID string, flagged bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET flagged = ? WHERE user_id = ?
	`, boolToInt(flagged), userID)
	if err != nil {
		return fmt.Errorf("SetUserFlagged: updating %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetUserFlagged: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertAccounts inserts or replaces accounts keyed by account_id.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	return s.execTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO accounts (account_id, user_id, type, subtype, name, mask, balance, "limit")
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("UpsertAccounts: preparing: %w", err)
		}
		defer stmt.Close()
		for _, a := range accounts {
			if _, err := stmt.ExecContext(ctx, a.AccountID, a.UserID, a.Type, a.Subtype, a.Name, a.Mask, a.Balance, a.Limit); err != nil {
				return fmt.Errorf("UpsertAccounts: inserting %s: %w", a.AccountID, err)
			}
		}
		return nil
	})
}

// ListAccounts returns accounts, optionally narrowed to one user.
func (s *Store) ListAccounts(ctx context.Context, f store.Filter) ([]domain.Account, error) {
	query := `SELECT account_id, user_id, type, subtype, name, mask, balance, "limit" FROM accounts WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	query += " ORDER BY user_id, account_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: querying: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.AccountID, &a.UserID, &a.Type, &a.Subtype, &a.Name, &a.Mask, &a.Balance, &a.Limit); err != nil {
			return nil, fmt.Errorf("ListAccounts: scanning: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// InsertTransactions appends ledger rows. Re-inserting an existing
// transaction_id replaces it, which keeps seeding idempotent.
func (s *Store) InsertTransactions(ctx context.Context, txns []domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	return s.execTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO transactions
				(transaction_id, account_id, user_id, date, amount, merchant_name, category, pending, payment_channel, authorized_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("InsertTransactions: preparing: %w", err)
		}
		defer stmt.Close()
		for _, t := range txns {
			var authorized any
			if t.AuthorizedDate != nil && !t.AuthorizedDate.IsZero() {
				authorized = formatDate(*t.AuthorizedDate)
			}
			_, err := stmt.ExecContext(ctx,
				t.TransactionID, t.AccountID, t.UserID, formatDate(t.Date), t.Amount,
				t.MerchantName, domain.EncodeCategory(t.Category), boolToInt(t.Pending),
				t.PaymentChannel, authorized,
			)
			if err != nil {
				return fmt.Errorf("InsertTransactions: inserting %s: %w", t.TransactionID, err)
			}
		}
		return nil
	})
}

// ListTransactions returns ledger rows in chronological order.
func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]domain.Transaction, error) {
	query := `
		SELECT transaction_id, account_id, user_id, date, amount, merchant_name, category, pending, payment_channel, authorized_date
		FROM transactions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, formatDate(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND date <= ?"
		args = append(args, formatDate(f.End))
	}
	if f.Search != "" {
		query += " AND merchant_name LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	query += " ORDER BY date, transaction_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: querying: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var date, category string
		var pending int
		var authorized sql.NullString
		if err := rows.Scan(&t.TransactionID, &t.AccountID, &t.UserID, &date, &t.Amount,
			&t.MerchantName, &category, &pending, &t.PaymentChannel, &authorized); err != nil {
			return nil, fmt.Errorf("ListTransactions: scanning: %w", err)
		}
		t.Date = parseDate(date)
		t.Category = domain.NormalizeCategory(category)
		t.Pending = pending != 0
		if authorized.Valid && authorized.String != "" {
			d := parseDate(authorized.String)
			t.AuthorizedDate = &d
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
