// Package sqlite is the primary relational backend. One database file holds
// every record type; schema setup is idempotent so opening a fresh path
// yields a ready store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spendsense/spendsense/internal/store"
)

func init() {
	store.Register(store.BackendSQLite, func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg.DBPath)
	})
}

// Store implements store.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ensuring schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// schema is the authoritative DDL. The files under migrations/sqlite mirror
// it for cmd/migrate; keep both in sync when adding columns.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	flagged    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	subtype    TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	mask       TEXT NOT NULL DEFAULT '',
	balance    REAL NOT NULL DEFAULT 0,
	"limit"    REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

CREATE TABLE IF NOT EXISTS transactions (
	transaction_id  TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	date            TEXT NOT NULL,
	amount          REAL NOT NULL,
	merchant_name   TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '[]',
	pending         INTEGER NOT NULL DEFAULT 0,
	payment_channel TEXT NOT NULL DEFAULT '',
	authorized_date TEXT
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date);

CREATE TABLE IF NOT EXISTS computed_features (
	user_id     TEXT NOT NULL,
	time_window TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	signal_data TEXT NOT NULL,
	computed_at TEXT NOT NULL,
	PRIMARY KEY (user_id, time_window, signal_type)
);

CREATE TABLE IF NOT EXISTS persona_assignments (
	user_id                  TEXT NOT NULL,
	time_window              TEXT NOT NULL,
	persona                  TEXT NOT NULL,
	criteria_met             TEXT NOT NULL DEFAULT '[]',
	match_high_utilization   REAL NOT NULL DEFAULT 0,
	match_variable_income    REAL NOT NULL DEFAULT 0,
	match_subscription_heavy REAL NOT NULL DEFAULT 0,
	match_savings_builder    REAL NOT NULL DEFAULT 0,
	match_general_wellness   REAL NOT NULL DEFAULT 0,
	assigned_at              TEXT NOT NULL,
	PRIMARY KEY (user_id, time_window)
);

CREATE TABLE IF NOT EXISTS recommendations (
	recommendation_id TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	type              TEXT NOT NULL,
	content_id        TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	rationale         TEXT NOT NULL DEFAULT '',
	decision_trace    TEXT NOT NULL DEFAULT '{}',
	shown_at          TEXT NOT NULL,
	overridden        INTEGER NOT NULL DEFAULT 0,
	override_reason   TEXT NOT NULL DEFAULT '',
	overridden_by     TEXT NOT NULL DEFAULT '',
	overridden_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_recommendations_user ON recommendations(user_id, shown_at);

CREATE TABLE IF NOT EXISTS chat_logs (
	chat_id           TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	message           TEXT NOT NULL,
	response          TEXT NOT NULL,
	citations         TEXT,
	guardrails_passed INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_logs_user ON chat_logs(user_id, created_at);

CREATE TABLE IF NOT EXISTS operator_actions (
	action_id         TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	operator_id       TEXT NOT NULL DEFAULT '',
	action_type       TEXT NOT NULL,
	recommendation_id TEXT NOT NULL DEFAULT '',
	reason            TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operator_actions_user ON operator_actions(user_id, created_at);
`

// EnsureSchema creates every table and index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

// Timestamps are stored as fixed-width UTC strings so lexical comparison in
// SQL matches chronological order. Transaction dates keep day precision.
const (
	timeLayout = "2006-01-02T15:04:05Z"
	dateLayout = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inPlaceholders renders "?,?,?" for len(ids) parameters.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// execTx runs fn inside a transaction, rolling back on error.
func (s *Store) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
