// Package analytics aggregates stored records into the operator dashboard
// views: persona distribution now and by week, activity, safety indicators,
// and per-persona engagement. Counting is pushed down to the store backend;
// this layer owns the week math and the rate arithmetic.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

const (
	// DefaultWeeks is the weekly-distribution lookback.
	DefaultWeeks = 12
	// DefaultActiveDays is the activity lookback.
	DefaultActiveDays = 7
)

// Service computes dashboard aggregates over one store backend.
type Service struct {
	store store.Analytics
	now   func() time.Time
}

// NewService builds an analytics service.
func NewService(st store.Analytics) *Service {
	return &Service{store: st, now: time.Now}
}

// Distribution is one persona-count snapshot. Every persona is present even
// when its count is zero so dashboard series stay aligned.
type Distribution struct {
	HighUtilization   int `json:"high_utilization"`
	VariableIncome    int `json:"variable_income"`
	SubscriptionHeavy int `json:"subscription_heavy"`
	SavingsBuilder    int `json:"savings_builder"`
	GeneralWellness   int `json:"general_wellness"`
}

func newDistribution(counts map[domain.Persona]int) Distribution {
	return Distribution{
		HighUtilization:   counts[domain.PersonaHighUtilization],
		VariableIncome:    counts[domain.PersonaVariableIncome],
		SubscriptionHeavy: counts[domain.PersonaSubscriptionHeavy],
		SavingsBuilder:    counts[domain.PersonaSavingsBuilder],
		GeneralWellness:   counts[domain.PersonaGeneralWellness],
	}
}

// Total sums the five persona counts.
func (d Distribution) Total() int {
	return d.HighUtilization + d.VariableIncome + d.SubscriptionHeavy +
		d.SavingsBuilder + d.GeneralWellness
}

// WeekSnapshot is the distribution of assignments made during one week.
type WeekSnapshot struct {
	WeekStart string `json:"week_start"`
	Distribution
}

// SafetyIndicators is the operator safety panel: how often humans override
// recommendations, how often chat answers clear the guardrails, and how much
// of the population is flagged or recently active.
type SafetyIndicators struct {
	TotalRecommendations int     `json:"total_recommendations"`
	OverriddenCount      int     `json:"overridden_count"`
	OverrideRate         float64 `json:"override_rate"`
	TotalChatLogs        int     `json:"total_chat_logs"`
	GuardrailsPassed     int     `json:"guardrails_passed_count"`
	GuardrailsPassRate   float64 `json:"guardrails_pass_rate"`
	FlaggedUsers         int     `json:"flagged_users_count"`
	TotalUsers           int     `json:"total_users"`
	ActiveUsers7d        int     `json:"active_users_7d"`
}

// PersonaEngagement describes how one persona cohort uses the product.
type PersonaEngagement struct {
	Persona            domain.Persona `json:"persona"`
	UserCount          int            `json:"user_count"`
	AvgRecommendations float64        `json:"avg_recommendations"`
	ChatMessages       int            `json:"chat_messages"`
	OverrideRate       float64        `json:"override_rate"`
}

// CurrentDistribution counts each user's latest assignment for the window.
func (s *Service) CurrentDistribution(ctx context.Context, window domain.TimeWindow) (Distribution, error) {
	if window == "" {
		window = domain.Window30d
	}
	counts, err := s.store.LatestPersonaCounts(ctx, window)
	if err != nil {
		return Distribution{}, fmt.Errorf("CurrentDistribution: %w", err)
	}
	return newDistribution(counts), nil
}

// WeeklyDistribution buckets assignments into consecutive [start, start+7d)
// weeks. The series runs from weeks*7 days ago through the current partial
// week, so a 12-week request yields 13 snapshots.
func (s *Service) WeeklyDistribution(ctx context.Context, window domain.TimeWindow, weeks int) ([]WeekSnapshot, error) {
	if window == "" {
		window = domain.Window30d
	}
	if weeks <= 0 {
		weeks = DefaultWeeks
	}

	end := s.now().UTC()
	weekStart := end.AddDate(0, 0, -7*weeks)

	var snapshots []WeekSnapshot
	for !weekStart.After(end) {
		weekEnd := weekStart.AddDate(0, 0, 7)
		counts, err := s.store.PersonaCountsBetween(ctx, window, weekStart, weekEnd)
		if err != nil {
			return nil, fmt.Errorf("WeeklyDistribution: week of %s: %w", weekStart.Format("2006-01-02"), err)
		}
		snapshots = append(snapshots, WeekSnapshot{
			WeekStart:    weekStart.Format("2006-01-02"),
			Distribution: newDistribution(counts),
		})
		weekStart = weekEnd
	}
	return snapshots, nil
}

// ActiveUsers counts users with chat, operator, or recommendation activity
// in the trailing period.
func (s *Service) ActiveUsers(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultActiveDays
	}
	since := s.now().AddDate(0, 0, -days)
	n, err := s.store.ActiveUserCount(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("ActiveUsers: %w", err)
	}
	return n, nil
}

// SafetyIndicators aggregates override, guardrail, and flag counters across
// the whole population.
func (s *Service) SafetyIndicators(ctx context.Context) (*SafetyIndicators, error) {
	recs, err := s.store.RecommendationCounts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SafetyIndicators: recommendations: %w", err)
	}
	chats, err := s.store.ChatCounts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SafetyIndicators: chat logs: %w", err)
	}
	flagged, err := s.store.FlaggedUserCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("SafetyIndicators: flagged users: %w", err)
	}
	total, err := s.store.UserCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("SafetyIndicators: users: %w", err)
	}
	active, err := s.ActiveUsers(ctx, DefaultActiveDays)
	if err != nil {
		return nil, fmt.Errorf("SafetyIndicators: %w", err)
	}

	ind := &SafetyIndicators{
		TotalRecommendations: recs.Total,
		OverriddenCount:      recs.Overridden,
		TotalChatLogs:        chats.Total,
		GuardrailsPassed:     chats.GuardrailsPassed,
		FlaggedUsers:         flagged,
		TotalUsers:           total,
		ActiveUsers7d:        active,
	}
	if recs.Total > 0 {
		ind.OverrideRate = float64(recs.Overridden) / float64(recs.Total)
	}
	if chats.Total > 0 {
		ind.GuardrailsPassRate = float64(chats.GuardrailsPassed) / float64(chats.Total)
	}
	return ind, nil
}

// Engagement computes cohort metrics for each persona, or for a single one
// when persona is non-empty. Results follow classifier priority order.
func (s *Service) Engagement(ctx context.Context, window domain.TimeWindow, persona domain.Persona) ([]PersonaEngagement, error) {
	if window == "" {
		window = domain.Window30d
	}
	personas := domain.Personas
	if persona != "" {
		personas = []domain.Persona{persona}
	}

	out := make([]PersonaEngagement, 0, len(personas))
	for _, p := range personas {
		ids, err := s.store.PersonaUserIDs(ctx, window, p)
		if err != nil {
			return nil, fmt.Errorf("Engagement: %s cohort: %w", p, err)
		}
		e := PersonaEngagement{Persona: p, UserCount: len(ids)}
		if len(ids) > 0 {
			recs, err := s.store.RecommendationCounts(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("Engagement: %s recommendations: %w", p, err)
			}
			chats, err := s.store.ChatCounts(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("Engagement: %s chat logs: %w", p, err)
			}
			e.AvgRecommendations = float64(recs.Total) / float64(len(ids))
			if recs.Total > 0 {
				e.OverrideRate = float64(recs.Overridden) / float64(recs.Total)
			}
			e.ChatMessages = chats.Total
		}
		out = append(out, e)
	}
	return out, nil
}
