package analytics

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store/sqlite"
)

// analyticsAt is a Monday so the weekly series lands on calendar-friendly
// boundaries.
var analyticsAt = time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)

func newSeededService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "spendsense.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	err = s.UpsertUsers(ctx, []domain.User{
		{UserID: "user_001", Name: "Dana Waters", Flagged: true, CreatedAt: analyticsAt.AddDate(0, -6, 0)},
		{UserID: "user_002", Name: "Miguel Ortiz", CreatedAt: analyticsAt.AddDate(0, -6, 0)},
		{UserID: "user_003", Name: "Priya Nair", CreatedAt: analyticsAt.AddDate(0, -6, 0)},
	})
	if err != nil {
		t.Fatalf("seeding users: %v", err)
	}

	err = s.UpsertAssignments(ctx, []domain.PersonaAssignment{
		{
			UserID: "user_001", TimeWindow: domain.Window30d,
			Persona:    domain.PersonaHighUtilization,
			AssignedAt: analyticsAt.AddDate(0, 0, -2),
		},
		{
			UserID: "user_002", TimeWindow: domain.Window30d,
			Persona:    domain.PersonaSavingsBuilder,
			AssignedAt: analyticsAt.AddDate(0, 0, -9),
		},
		{
			UserID: "user_003", TimeWindow: domain.Window30d,
			Persona:    domain.PersonaHighUtilization,
			AssignedAt: analyticsAt.AddDate(0, 0, -13),
		},
	})
	if err != nil {
		t.Fatalf("seeding assignments: %v", err)
	}

	recs := []domain.Recommendation{
		{
			RecommendationID: "rec_a1", UserID: "user_001",
			Type: domain.RecommendationEducation, ContentID: "edu_001",
			ShownAt: analyticsAt.AddDate(0, 0, -3),
		},
		{
			RecommendationID: "rec_a2", UserID: "user_001",
			Type: domain.RecommendationEducation, ContentID: "edu_002",
			ShownAt: analyticsAt.AddDate(0, 0, -3), Overridden: true,
		},
		{
			RecommendationID: "rec_b1", UserID: "user_003",
			Type: domain.RecommendationPartnerOffer, ContentID: "offer_001",
			ShownAt: analyticsAt.AddDate(0, 0, -20),
		},
	}
	if err := s.InsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("seeding recommendations: %v", err)
	}

	chats := []domain.ChatLog{
		{
			ChatID: "chat_a", UserID: "user_002",
			Message: "How much am I spending on subscriptions?", Response: "...",
			GuardrailsPassed: true, CreatedAt: analyticsAt.AddDate(0, 0, -1),
		},
		{
			ChatID: "chat_b", UserID: "user_003",
			Message: "Should I buy index funds?", Response: "...",
			CreatedAt: analyticsAt.AddDate(0, 0, -10),
		},
	}
	for _, cl := range chats {
		if err := s.InsertChatLog(ctx, &cl); err != nil {
			t.Fatalf("seeding chat log %s: %v", cl.ChatID, err)
		}
	}

	err = s.InsertOperatorAction(ctx, &domain.OperatorAction{
		ActionID: "action_a", UserID: "user_001", OperatorID: "op_1",
		ActionType: domain.ActionOverride, RecommendationID: "rec_a2",
		Reason: "stale data", CreatedAt: analyticsAt.AddDate(0, 0, -2),
	})
	if err != nil {
		t.Fatalf("seeding operator action: %v", err)
	}

	svc := NewService(s)
	svc.now = func() time.Time { return analyticsAt }
	return svc
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCurrentDistribution(t *testing.T) {
	t.Parallel()
	svc := newSeededService(t)

	dist, err := svc.CurrentDistribution(context.Background(), "")
	if err != nil {
		t.Fatalf("CurrentDistribution: %v", err)
	}
	want := Distribution{HighUtilization: 2, SavingsBuilder: 1}
	if dist != want {
		t.Fatalf("distribution = %+v, want %+v", dist, want)
	}
	if dist.Total() != 3 {
		t.Errorf("Total() = %d, want 3", dist.Total())
	}
}

func TestWeeklyDistribution(t *testing.T) {
	t.Parallel()
	svc := newSeededService(t)

	snaps, err := svc.WeeklyDistribution(context.Background(), domain.Window30d, 2)
	if err != nil {
		t.Fatalf("WeeklyDistribution: %v", err)
	}
	want := []WeekSnapshot{
		{WeekStart: "2025-06-30", Distribution: Distribution{HighUtilization: 1, SavingsBuilder: 1}},
		{WeekStart: "2025-07-07", Distribution: Distribution{HighUtilization: 1}},
		{WeekStart: "2025-07-14", Distribution: Distribution{}},
	}
	if !reflect.DeepEqual(snaps, want) {
		t.Fatalf("snapshots = %+v, want %+v", snaps, want)
	}
}

func TestActiveUsers(t *testing.T) {
	t.Parallel()
	svc := newSeededService(t)
	ctx := context.Background()

	// user_001 (recommendation + action) and user_002 (chat) are active in
	// the last week; user_003's activity is older.
	n, err := svc.ActiveUsers(ctx, 0)
	if err != nil {
		t.Fatalf("ActiveUsers: %v", err)
	}
	if n != 2 {
		t.Fatalf("ActiveUsers(7d) = %d, want 2", n)
	}

	n, err = svc.ActiveUsers(ctx, 30)
	if err != nil {
		t.Fatalf("ActiveUsers(30): %v", err)
	}
	if n != 3 {
		t.Fatalf("ActiveUsers(30d) = %d, want 3", n)
	}
}

func TestSafetyIndicators(t *testing.T) {
	t.Parallel()
	svc := newSeededService(t)

	ind, err := svc.SafetyIndicators(context.Background())
	if err != nil {
		t.Fatalf("SafetyIndicators: %v", err)
	}
	if ind.TotalRecommendations != 3 || ind.OverriddenCount != 1 {
		t.Errorf("recommendations = %d/%d, want 3/1", ind.TotalRecommendations, ind.OverriddenCount)
	}
	if !almostEqual(ind.OverrideRate, 1.0/3.0) {
		t.Errorf("OverrideRate = %v, want 1/3", ind.OverrideRate)
	}
	if ind.TotalChatLogs != 2 || ind.GuardrailsPassed != 1 {
		t.Errorf("chat logs = %d/%d, want 2/1", ind.TotalChatLogs, ind.GuardrailsPassed)
	}
	if !almostEqual(ind.GuardrailsPassRate, 0.5) {
		t.Errorf("GuardrailsPassRate = %v, want 0.5", ind.GuardrailsPassRate)
	}
	if ind.FlaggedUsers != 1 {
		t.Errorf("FlaggedUsers = %d, want 1", ind.FlaggedUsers)
	}
	if ind.TotalUsers != 3 {
		t.Errorf("TotalUsers = %d, want 3", ind.TotalUsers)
	}
	if ind.ActiveUsers7d != 2 {
		t.Errorf("ActiveUsers7d = %d, want 2", ind.ActiveUsers7d)
	}
}

func TestEngagement_AllPersonas(t *testing.T) {
	t.Parallel()
	svc := newSeededService(t)

	cohorts, err := svc.Engagement(context.Background(), domain.Window30d, "")
	if err != nil {
		t.Fatalf("Engagement: %v", err)
	}
	if len(cohorts) != len(domain.Personas) {
		t.Fatalf("len(cohorts) = %d, want %d", len(cohorts), len(domain.Personas))
	}
	for i, c := range cohorts {
		if c.Persona != domain.Personas[i] {
			t.Fatalf("cohorts[%d] = %s, want %s", i, c.Persona, domain.Personas[i])
		}
	}

	hu := cohorts[0]
	if hu.UserCount != 2 {
		t.Errorf("high_utilization UserCount = %d, want 2", hu.UserCount)
	}
	if !almostEqual(hu.AvgRecommendations, 1.5) {
		t.Errorf("high_utilization AvgRecommendations = %v, want 1.5", hu.AvgRecommendations)
	}
	if !almostEqual(hu.OverrideRate, 1.0/3.0) {
		t.Errorf("high_utilization OverrideRate = %v, want 1/3", hu.OverrideRate)
	}
	if hu.ChatMessages != 1 {
		t.Errorf("high_utilization ChatMessages = %d, want 1", hu.ChatMessages)
	}

	sb := cohorts[3]
	if sb.Persona != domain.PersonaSavingsBuilder || sb.UserCount != 1 {
		t.Fatalf("cohorts[3] = %+v, want savings_builder with 1 user", sb)
	}
	if sb.AvgRecommendations != 0 || sb.OverrideRate != 0 {
		t.Errorf("savings_builder rates = %v/%v, want zeros", sb.AvgRecommendations, sb.OverrideRate)
	}
	if sb.ChatMessages != 1 {
		t.Errorf("savings_builder ChatMessages = %d, want 1", sb.ChatMessages)
	}

	for _, i := range []int{1, 2, 4} {
		if c := cohorts[i]; c.UserCount != 0 || c.ChatMessages != 0 {
			t.Errorf("empty cohort %s = %+v", c.Persona, c)
		}
	}
}

func TestEngagement_SinglePersona(t *testing.T) {
	t.Parallel()
	svc := newSeededService(t)

	cohorts, err := svc.Engagement(context.Background(), domain.Window30d, domain.PersonaHighUtilization)
	if err != nil {
		t.Fatalf("Engagement: %v", err)
	}
	if len(cohorts) != 1 || cohorts[0].Persona != domain.PersonaHighUtilization {
		t.Fatalf("cohorts = %+v, want only high_utilization", cohorts)
	}
}
