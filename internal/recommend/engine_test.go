package recommend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/spendsense/spendsense/internal/catalog"
	"github.com/spendsense/spendsense/internal/domain"
)

var engineAt = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	e := NewEngine(cat)
	e.now = func() time.Time { return engineAt }
	seq := 0
	e.newID = func() string {
		seq++
		return fmt.Sprintf("rec_%012d", seq)
	}
	return e
}

func assignmentFor(b domain.SignalBundle, p domain.Persona) domain.PersonaAssignment {
	return domain.PersonaAssignment{
		UserID:     b.UserID,
		TimeWindow: b.TimeWindow,
		Persona:    p,
		AssignedAt: engineAt,
	}
}

func recIDs(recs []domain.Recommendation, recType domain.RecommendationType) []string {
	var ids []string
	for _, r := range recs {
		if r.Type == recType {
			ids = append(ids, r.ContentID)
		}
	}
	return ids
}

func TestGenerate_HighUtilizationUser(t *testing.T) {
	e := testEngine(t)

	b := creditBundle()
	b.CreditUtilization.MinimumPaymentOnly = true
	b.SavingsBehavior = domain.SavingsBehavior{}
	b.Subscriptions = domain.Subscriptions{RecurringMerchants: []string{}}

	recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaHighUtilization), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	edu := recIDs(recs, domain.RecommendationEducation)
	if len(edu) != 5 {
		t.Fatalf("education items = %d (%v), want 5", len(edu), edu)
	}
	wantEdu := []string{
		"edu_credit_util_101",
		"edu_minimum_payments_101",
		"edu_debt_strategies_101",
		"edu_autopay_setup_101",
		"edu_debt_paydown_plan_101",
	}
	for i, want := range wantEdu {
		if edu[i] != want {
			t.Errorf("education[%d] = %s, want %s", i, edu[i], want)
		}
	}

	// Utilization 0.68 qualifies for the balance transfer offer since the
	// account is not overdue; the subscription and savings offers do not
	// apply, so the always-eligible offers fill the remaining slots.
	offers := recIDs(recs, domain.RecommendationPartnerOffer)
	wantOffers := []string{"offer_balance_transfer", "offer_budgeting_app", "offer_credit_monitoring"}
	if len(offers) != len(wantOffers) {
		t.Fatalf("offers = %v, want %v", offers, wantOffers)
	}
	for i, want := range wantOffers {
		if offers[i] != want {
			t.Errorf("offers[%d] = %s, want %s", i, offers[i], want)
		}
	}
}

func TestGenerate_GeneralWellnessFallback(t *testing.T) {
	e := testEngine(t)

	b := domain.SignalBundle{
		UserID:     "user_010",
		TimeWindow: domain.Window30d,
		CreditUtilization: domain.CreditUtilization{
			UtilizationLevel: "low",
			Accounts:         []domain.UtilizationAccount{},
		},
		Subscriptions:   domain.Subscriptions{RecurringMerchants: []string{}},
		SavingsBehavior: domain.SavingsBehavior{CoverageLevel: "low"},
		IncomeStability: domain.IncomeStability{Frequency: "unknown"},
	}

	recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaGeneralWellness), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	edu := recIDs(recs, domain.RecommendationEducation)
	if len(edu) != 5 {
		t.Errorf("education items = %d, want all 5 general_wellness items", len(edu))
	}

	offers := recIDs(recs, domain.RecommendationPartnerOffer)
	wantOffers := []string{"offer_budgeting_app", "offer_credit_monitoring", "offer_financial_planning"}
	if len(offers) != len(wantOffers) {
		t.Fatalf("offers = %v, want %v", offers, wantOffers)
	}
	for i, want := range wantOffers {
		if offers[i] != want {
			t.Errorf("offers[%d] = %s, want %s", i, offers[i], want)
		}
	}
}

func TestGenerate_SavingsBuilderUser(t *testing.T) {
	e := testEngine(t)

	b := domain.SignalBundle{
		UserID:     "user_020",
		TimeWindow: domain.Window180d,
		CreditUtilization: domain.CreditUtilization{
			UtilizationLevel: "low",
			Accounts:         []domain.UtilizationAccount{},
		},
		Subscriptions: domain.Subscriptions{RecurringMerchants: []string{}},
		SavingsBehavior: domain.SavingsBehavior{
			TotalSavings:          8800,
			GrowthRate:            5.0,
			NetInflow:             800,
			EmergencyFundCoverage: 3.5,
			CoverageLevel:         "good",
		},
		IncomeStability: domain.IncomeStability{Frequency: "biweekly", MedianPayGap: 14, CashFlowBuffer: 2.0},
	}

	recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaSavingsBuilder), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	edu := recIDs(recs, domain.RecommendationEducation)
	wantEdu := []string{"edu_savings_to_investing_101", "edu_hysa_explained_101", "edu_smart_financial_goals_101"}
	if len(edu) != len(wantEdu) {
		t.Fatalf("education = %v, want %v", edu, wantEdu)
	}
	for i, want := range wantEdu {
		if edu[i] != want {
			t.Errorf("education[%d] = %s, want %s", i, edu[i], want)
		}
	}

	offers := recIDs(recs, domain.RecommendationPartnerOffer)
	wantOffers := []string{"offer_hysa", "offer_budgeting_app", "offer_credit_monitoring"}
	for i, want := range wantOffers {
		if offers[i] != want {
			t.Errorf("offers[%d] = %s, want %s", i, offers[i], want)
		}
	}
}

func TestGenerate_TopUpBelowMinimum(t *testing.T) {
	e := testEngine(t)

	// Only the pay-gap trigger fires, matching a single variable_income
	// item. The selection is topped up from the persona's remaining items
	// to reach the lower bound.
	b := domain.SignalBundle{
		UserID:     "user_030",
		TimeWindow: domain.Window180d,
		CreditUtilization: domain.CreditUtilization{
			UtilizationLevel: "low",
			Accounts:         []domain.UtilizationAccount{},
		},
		Subscriptions: domain.Subscriptions{RecurringMerchants: []string{}},
		IncomeStability: domain.IncomeStability{
			Frequency:      "monthly",
			MedianPayGap:   50,
			CashFlowBuffer: 1.5,
		},
	}

	recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaVariableIncome), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	edu := recIDs(recs, domain.RecommendationEducation)
	wantEdu := []string{"edu_irregular_income_budgeting_101", "edu_cash_flow_buffer_101", "edu_503020_rule_adapted_101"}
	if len(edu) != len(wantEdu) {
		t.Fatalf("education = %v, want %v", edu, wantEdu)
	}
	for i, want := range wantEdu {
		if edu[i] != want {
			t.Errorf("education[%d] = %s, want %s", i, edu[i], want)
		}
	}

	// Trigger-matched item records its fired signals; topped-up items do not.
	first, err := ParseDecisionTrace(recs[0].DecisionTrace)
	if err != nil {
		t.Fatalf("ParseDecisionTrace() error = %v", err)
	}
	if len(first.SignalsUsed) != 1 || first.SignalsUsed[0] != TriggerMedianPayGapHigh {
		t.Errorf("first trace signals_used = %v, want [%s]", first.SignalsUsed, TriggerMedianPayGapHigh)
	}
	second, err := ParseDecisionTrace(recs[1].DecisionTrace)
	if err != nil {
		t.Fatalf("ParseDecisionTrace() error = %v", err)
	}
	if len(second.SignalsUsed) != 0 {
		t.Errorf("topped-up trace signals_used = %v, want empty", second.SignalsUsed)
	}
}

func TestGenerate_Bounds(t *testing.T) {
	e := testEngine(t)

	bundles := []struct {
		persona domain.Persona
		bundle  domain.SignalBundle
	}{
		{domain.PersonaHighUtilization, creditBundle()},
		{domain.PersonaGeneralWellness, domain.SignalBundle{UserID: "u1", TimeWindow: domain.Window30d}},
		{domain.PersonaSubscriptionHeavy, domain.SignalBundle{
			UserID:        "u2",
			TimeWindow:    domain.Window30d,
			Subscriptions: domain.Subscriptions{RecurringMerchants: []string{"A", "B", "C", "D"}, MonthlyRecurring: 80},
		}},
	}

	for _, tc := range bundles {
		recs, _, err := e.Generate(context.Background(), assignmentFor(tc.bundle, tc.persona), tc.bundle)
		if err != nil {
			t.Fatalf("Generate(%s) error = %v", tc.persona, err)
		}
		edu := len(recIDs(recs, domain.RecommendationEducation))
		offers := len(recIDs(recs, domain.RecommendationPartnerOffer))
		if edu < MinEducationItems || edu > MaxEducationItems {
			t.Errorf("persona %s: education count = %d, want within [%d, %d]", tc.persona, edu, MinEducationItems, MaxEducationItems)
		}
		if offers < 1 || offers > MaxOffers {
			t.Errorf("persona %s: offer count = %d, want within [1, %d]", tc.persona, offers, MaxOffers)
		}
	}
}

func TestGenerate_TraceFields(t *testing.T) {
	e := testEngine(t)
	b := creditBundle()

	recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaHighUtilization), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("Generate() produced no recommendations")
	}

	idPattern := regexp.MustCompile(`^rec_\d{12}$`)
	for _, rec := range recs {
		if !idPattern.MatchString(rec.RecommendationID) {
			t.Errorf("RecommendationID = %q, want rec_ prefix with 12 chars", rec.RecommendationID)
		}
		if rec.UserID != b.UserID {
			t.Errorf("UserID = %s, want %s", rec.UserID, b.UserID)
		}
		if !rec.ShownAt.Equal(engineAt) {
			t.Errorf("ShownAt = %v, want %v", rec.ShownAt, engineAt)
		}

		trace, err := ParseDecisionTrace(rec.DecisionTrace)
		if err != nil {
			t.Fatalf("ParseDecisionTrace(%s) error = %v", rec.ContentID, err)
		}
		if trace.PersonaMatch != domain.PersonaHighUtilization {
			t.Errorf("trace persona_match = %s, want %s", trace.PersonaMatch, domain.PersonaHighUtilization)
		}
		if trace.ContentID != rec.ContentID {
			t.Errorf("trace content_id = %s, want %s", trace.ContentID, rec.ContentID)
		}
		if trace.SignalsUsed == nil {
			t.Errorf("trace signals_used is null for %s, want a list", rec.ContentID)
		}
		if !trace.Guardrails.ToneCheck || !trace.Guardrails.EligibilityCheck {
			t.Errorf("trace guardrails = %+v, want both checks true", trace.Guardrails)
		}
		if !trace.Timestamp.Equal(engineAt) {
			t.Errorf("trace timestamp = %v, want %v", trace.Timestamp, engineAt)
		}
	}
}

func TestGenerate_OfferTraceRecordsConsultedFields(t *testing.T) {
	e := testEngine(t)
	b := creditBundle()

	recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaHighUtilization), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var bt *domain.Recommendation
	for i := range recs {
		if recs[i].ContentID == "offer_balance_transfer" {
			bt = &recs[i]
			break
		}
	}
	if bt == nil {
		t.Fatal("offer_balance_transfer not generated")
	}

	trace, err := ParseDecisionTrace(bt.DecisionTrace)
	if err != nil {
		t.Fatalf("ParseDecisionTrace() error = %v", err)
	}
	// min_credit_score has no signal counterpart and must not appear.
	want := []string{"credit_utilization", "is_overdue"}
	if len(trace.SignalsUsed) != len(want) {
		t.Fatalf("signals_used = %v, want %v", trace.SignalsUsed, want)
	}
	for i, field := range want {
		if trace.SignalsUsed[i] != field {
			t.Errorf("signals_used[%d] = %s, want %s", i, trace.SignalsUsed[i], field)
		}
	}
}

func TestGenerate_NoResidualPlaceholders(t *testing.T) {
	e := testEngine(t)

	bundles := []domain.SignalBundle{
		creditBundle(),
		{UserID: "empty", TimeWindow: domain.Window30d},
	}
	personas := []domain.Persona{
		domain.PersonaHighUtilization,
		domain.PersonaVariableIncome,
		domain.PersonaSubscriptionHeavy,
		domain.PersonaSavingsBuilder,
		domain.PersonaGeneralWellness,
	}

	pattern := regexp.MustCompile(`\{[^}]+\}`)
	for _, b := range bundles {
		for _, p := range personas {
			recs, _, err := e.Generate(context.Background(), assignmentFor(b, p), b)
			if err != nil {
				t.Fatalf("Generate(%s) error = %v", p, err)
			}
			for _, rec := range recs {
				if pattern.MatchString(rec.Rationale) {
					t.Errorf("persona %s content %s: rationale %q contains residual placeholder", p, rec.ContentID, rec.Rationale)
				}
			}
		}
	}
}

func TestGenerate_GuardrailSuppressesRationale(t *testing.T) {
	dir := t.TempDir()
	allPersonas := "[high_utilization, variable_income, subscription_heavy, savings_builder, general_wellness]"
	edu := fmt.Sprintf(`items:
  - id: edu_clean_001
    title: Clean One
    category: planning
    personas: %s
    trigger_signals: []
    summary: s
    body: b
    rationale_template: "A calm look at your spending."
  - id: edu_flagged_001
    title: Flagged
    category: planning
    personas: %s
    trigger_signals: []
    summary: s
    body: b
    rationale_template: "Stop your wasteful overspending now."
  - id: edu_clean_002
    title: Clean Two
    category: planning
    personas: %s
    trigger_signals: []
    summary: s
    body: b
    rationale_template: "Another calm suggestion."
`, allPersonas, allPersonas, allPersonas)
	offers := `offers:
  - id: offer_any
    title: Any Offer
    partner: P
    summary: s
    rationale_template: "A neutral offer pitch."
`
	if err := os.WriteFile(filepath.Join(dir, "education.yaml"), []byte(edu), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "offers.yaml"), []byte(offers), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.LoadDir(dir)
	if err != nil {
		t.Fatalf("catalog.LoadDir() error = %v", err)
	}
	e := NewEngine(cat)
	e.now = func() time.Time { return engineAt }

	b := domain.SignalBundle{UserID: "user_040", TimeWindow: domain.Window30d}
	recs, suppressed, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaGeneralWellness), b)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if suppressed != 1 {
		t.Errorf("suppressed = %d, want 1", suppressed)
	}

	for _, rec := range recs {
		if rec.ContentID == "edu_flagged_001" {
			t.Errorf("flagged content %s reached the output with rationale %q", rec.ContentID, rec.Rationale)
		}
	}
	edu2 := recIDs(recs, domain.RecommendationEducation)
	if len(edu2) != 2 {
		t.Errorf("education = %v, want the two clean items", edu2)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}

	run := func() []domain.Recommendation {
		e := NewEngine(cat)
		e.now = func() time.Time { return engineAt }
		seq := 0
		e.newID = func() string {
			seq++
			return fmt.Sprintf("rec_%012d", seq)
		}
		b := creditBundle()
		recs, _, err := e.Generate(context.Background(), assignmentFor(b, domain.PersonaHighUtilization), b)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		return recs
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].RecommendationID != second[i].RecommendationID ||
			first[i].ContentID != second[i].ContentID ||
			first[i].Rationale != second[i].Rationale ||
			string(first[i].DecisionTrace) != string(second[i].DecisionTrace) {
			t.Errorf("recommendation %d differs between identical runs", i)
		}
	}
}
