// Package store defines the persistence contract shared by every backend.
// Backends register themselves at init time and are selected by configuration,
// so nothing above this package ever branches on the active engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// ErrNotFound is returned by Get operations when no row matches.
var ErrNotFound = errors.New("store: not found")

// Supported backends.
const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config selects and parameterizes a backend.
type Config struct {
	// Backend is one of BackendSQLite or BackendBigQuery. Empty selects SQLite.
	Backend string

	// DBPath is the SQLite database file.
	DBPath string

	// ProjectID and Dataset locate the BigQuery dataset.
	ProjectID string
	Dataset   string
}

// FromEnv builds a Config from SPENDSENSE_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Backend:   os.Getenv("SPENDSENSE_BACKEND"),
		DBPath:    os.Getenv("SPENDSENSE_DB_PATH"),
		ProjectID: os.Getenv("SPENDSENSE_PROJECT_ID"),
		Dataset:   os.Getenv("SPENDSENSE_DATASET"),
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "spendsense.db"
	}
	if cfg.Dataset == "" {
		cfg.Dataset = "spendsense"
	}
	return cfg
}

// Filter narrows list operations. Zero-valued fields are ignored. Start and
// End bound the entity's own timestamp (transaction date, computed_at,
// assigned_at, shown_at, created_at). Search matches substrings of the
// entity's text columns.
type Filter struct {
	UserID string
	Window domain.TimeWindow
	Start  time.Time
	End    time.Time
	Search string
}

// Repository is the full persistence surface for SpendSense records.
// Signals and persona assignments upsert by their natural key; transactions
// and recommendations are append-only, with the recommendation override
// fields as the single permitted mutation.
type Repository interface {
	UpsertUsers(ctx context.Context, users []domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SetUserFlagged(ctx context.Context, userID string, flagged bool) error

	UpsertAccounts(ctx context.Context, accounts []domain.Account) error
	ListAccounts(ctx context.Context, f Filter) ([]domain.Account, error)

	InsertTransactions(ctx context.Context, txns []domain.Transaction) error
	ListTransactions(ctx context.Context, f Filter) ([]domain.Transaction, error)

	UpsertSignals(ctx context.Context, records []domain.Signal) error
	ListSignals(ctx context.Context, f Filter) ([]domain.Signal, error)

	UpsertAssignments(ctx context.Context, assignments []domain.PersonaAssignment) error
	GetAssignment(ctx context.Context, userID string, window domain.TimeWindow) (*domain.PersonaAssignment, error)
	ListAssignments(ctx context.Context, f Filter) ([]domain.PersonaAssignment, error)

	InsertRecommendations(ctx context.Context, recs []domain.Recommendation) error
	GetRecommendation(ctx context.Context, recommendationID string) (*domain.Recommendation, error)
	ListRecommendations(ctx context.Context, f Filter) ([]domain.Recommendation, error)
	OverrideRecommendation(ctx context.Context, recommendationID, reason, overriddenBy string, at time.Time) error

	InsertChatLog(ctx context.Context, log *domain.ChatLog) error
	GetChatLog(ctx context.Context, chatID string) (*domain.ChatLog, error)
	ListChatLogs(ctx context.Context, f Filter) ([]domain.ChatLog, error)

	InsertOperatorAction(ctx context.Context, action *domain.OperatorAction) error
	GetOperatorAction(ctx context.Context, actionID string) (*domain.OperatorAction, error)
	ListOperatorActions(ctx context.Context, f Filter) ([]domain.OperatorAction, error)
}

// RecommendationCounts aggregates recommendation volume and overrides.
type RecommendationCounts struct {
	Total      int `json:"total"`
	Overridden int `json:"overridden"`
}

// ChatCounts aggregates chat volume and guardrail outcomes.
type ChatCounts struct {
	Total            int `json:"total"`
	GuardrailsPassed int `json:"guardrails_passed"`
}

// Analytics is the aggregation surface each backend answers natively.
// "Latest" always means the most recent assignment per user within the
// window, so re-runs do not double-count.
type Analytics interface {
	LatestPersonaCounts(ctx context.Context, window domain.TimeWindow) (map[domain.Persona]int, error)
	PersonaCountsBetween(ctx context.Context, window domain.TimeWindow, start, end time.Time) (map[domain.Persona]int, error)
	PersonaUserIDs(ctx context.Context, window domain.TimeWindow, persona domain.Persona) ([]string, error)
	ActiveUserCount(ctx context.Context, since time.Time) (int, error)
	RecommendationCounts(ctx context.Context, userIDs []string) (RecommendationCounts, error)
	ChatCounts(ctx context.Context, userIDs []string) (ChatCounts, error)
	FlaggedUserCount(ctx context.Context) (int, error)
	UserCount(ctx context.Context) (int, error)
}

// Store is what Open hands back: records plus aggregations plus lifecycle.
type Store interface {
	Repository
	Analytics
	Close() error
}

// OpenFunc constructs a backend from its configuration.
type OpenFunc func(ctx context.Context, cfg Config) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// Register makes a backend available to Open. Backends call it from init,
// the same contract database/sql drivers follow.
func Register(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if open == nil {
		panic("store: Register with nil OpenFunc")
	}
	if _, dup := drivers[name]; dup {
		panic("store: Register called twice for backend " + name)
	}
	drivers[name] = open
}

// Open constructs the backend named by cfg.Backend. An empty backend selects
// SQLite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	name := cfg.Backend
	if name == "" {
		name = BackendSQLite
	}

	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("Open: unknown backend %q (registered: %v)", name, registered())
	}

	s, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Open: backend %s: %w", name, err)
	}
	return s, nil
}

func registered() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
