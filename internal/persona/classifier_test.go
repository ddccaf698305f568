package persona

import (
	"reflect"
	"testing"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

var classifyAt = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func cleanBundle(userID string) domain.SignalBundle {
	return domain.SignalBundle{
		UserID:     userID,
		TimeWindow: domain.Window30d,
		CreditUtilization: domain.CreditUtilization{
			UtilizationLevel: "low",
			Accounts:         []domain.UtilizationAccount{},
		},
		Subscriptions: domain.Subscriptions{
			RecurringMerchants: []string{},
			MerchantDetails:    []domain.MerchantDetail{},
		},
		SavingsBehavior: domain.SavingsBehavior{CoverageLevel: "low"},
		IncomeStability: domain.IncomeStability{Frequency: "unknown"},
	}
}

func withUtilization(b domain.SignalBundle, total float64) domain.SignalBundle {
	b.CreditUtilization.TotalUtilization = total
	b.CreditUtilization.Accounts = []domain.UtilizationAccount{
		{AccountID: "acc_cc1", Utilization: total, Balance: total * 100, Limit: 10000},
	}
	return b
}

func withRecurring(b domain.SignalBundle, merchants []string, monthly, share float64) domain.SignalBundle {
	b.Subscriptions.RecurringMerchants = merchants
	b.Subscriptions.MonthlyRecurring = monthly
	b.Subscriptions.SubscriptionShare = share
	return b
}

func TestClassify_HighUtilization(t *testing.T) {
	tests := []struct {
		name   string
		bundle domain.SignalBundle
		want   domain.Persona
	}{
		{
			name:   "total utilization at 68 percent",
			bundle: withUtilization(cleanBundle("user_001"), 68.0),
			want:   domain.PersonaHighUtilization,
		},
		{
			name: "interest charged alone qualifies",
			bundle: func() domain.SignalBundle {
				b := withUtilization(cleanBundle("user_002"), 20.0)
				b.CreditUtilization.InterestCharged = 50.0
				return b
			}(),
			want: domain.PersonaHighUtilization,
		},
		{
			name: "minimum payment only alone qualifies",
			bundle: func() domain.SignalBundle {
				b := withUtilization(cleanBundle("user_003"), 20.0)
				b.CreditUtilization.MinimumPaymentOnly = true
				return b
			}(),
			want: domain.PersonaHighUtilization,
		},
		{
			name: "overdue alone qualifies",
			bundle: func() domain.SignalBundle {
				b := withUtilization(cleanBundle("user_004"), 20.0)
				b.CreditUtilization.IsOverdue = true
				return b
			}(),
			want: domain.PersonaHighUtilization,
		},
		{
			name: "single account over 50 qualifies even when total is below",
			bundle: func() domain.SignalBundle {
				b := cleanBundle("user_005")
				b.CreditUtilization.TotalUtilization = 35.0
				b.CreditUtilization.Accounts = []domain.UtilizationAccount{
					{AccountID: "acc_cc1", Utilization: 62.0, Balance: 3100, Limit: 5000},
					{AccountID: "acc_cc2", Utilization: 8.0, Balance: 400, Limit: 5000},
				}
				return b
			}(),
			want: domain.PersonaHighUtilization,
		},
		{
			name:   "clean card at 25 percent falls through",
			bundle: withUtilization(cleanBundle("user_006"), 25.0),
			want:   domain.PersonaGeneralWellness,
		},
		{
			name:   "no credit accounts falls through",
			bundle: cleanBundle("user_007"),
			want:   domain.PersonaGeneralWellness,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.bundle, classifyAt)
			if got.Persona != tt.want {
				t.Errorf("Classify() persona = %s, want %s", got.Persona, tt.want)
			}
		})
	}
}

func TestClassify_VariableIncome(t *testing.T) {
	tests := []struct {
		name   string
		gap    float64
		irreg  bool
		buffer float64
		want   domain.Persona
	}{
		{"wide pay gap with thin buffer", 50, false, 0.8, domain.PersonaVariableIncome},
		{"irregular cadence with thin buffer", 20, true, 0.5, domain.PersonaVariableIncome},
		{"regular biweekly income", 14, false, 0.8, domain.PersonaGeneralWellness},
		{"wide gap but comfortable buffer", 50, false, 2.0, domain.PersonaGeneralWellness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := cleanBundle("user_010")
			b.IncomeStability.MedianPayGap = tt.gap
			b.IncomeStability.IrregularFrequency = tt.irreg
			b.IncomeStability.CashFlowBuffer = tt.buffer
			if tt.irreg {
				b.IncomeStability.Frequency = "irregular"
			} else {
				b.IncomeStability.Frequency = "biweekly"
			}

			got := Classify(b, classifyAt)
			if got.Persona != tt.want {
				t.Errorf("Classify() persona = %s, want %s", got.Persona, tt.want)
			}
		})
	}
}

func TestClassify_SubscriptionHeavy(t *testing.T) {
	tests := []struct {
		name      string
		merchants []string
		monthly   float64
		share     float64
		want      domain.Persona
	}{
		{
			name:      "four merchants with meaningful monthly spend",
			merchants: []string{"Adobe", "Hulu", "Netflix", "Spotify"},
			monthly:   75.0,
			want:      domain.PersonaSubscriptionHeavy,
		},
		{
			name:      "three merchants qualify on share alone",
			merchants: []string{"Hulu", "Netflix", "Spotify"},
			monthly:   32.0,
			share:     12.0,
			want:      domain.PersonaSubscriptionHeavy,
		},
		{
			name:      "two merchants never qualify",
			merchants: []string{"Netflix", "Spotify"},
			monthly:   90.0,
			share:     20.0,
			want:      domain.PersonaGeneralWellness,
		},
		{
			name:      "three merchants below both spend thresholds",
			merchants: []string{"Hulu", "Netflix", "Spotify"},
			monthly:   30.0,
			share:     5.0,
			want:      domain.PersonaGeneralWellness,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := withRecurring(cleanBundle("user_020"), tt.merchants, tt.monthly, tt.share)
			got := Classify(b, classifyAt)
			if got.Persona != tt.want {
				t.Errorf("Classify() persona = %s, want %s", got.Persona, tt.want)
			}
		})
	}
}

func TestClassify_SavingsBuilder(t *testing.T) {
	tests := []struct {
		name      string
		growth    float64
		netInflow float64
		totalUtil float64
		want      domain.Persona
	}{
		{"growth with low utilization", 5.0, 150, 25.0, domain.PersonaSavingsBuilder},
		{"net inflow with low utilization", 1.0, 250, 20.0, domain.PersonaSavingsBuilder},
		{"growth but utilization too high", 5.0, 300, 45.0, domain.PersonaGeneralWellness},
		{"no growth and no inflow", 0.5, 100, 10.0, domain.PersonaGeneralWellness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := cleanBundle("user_030")
			b.SavingsBehavior.GrowthRate = tt.growth
			b.SavingsBehavior.NetInflow = tt.netInflow
			if tt.totalUtil > 0 {
				b = withUtilization(b, tt.totalUtil)
			}
			got := Classify(b, classifyAt)
			if got.Persona != tt.want {
				t.Errorf("Classify() persona = %s, want %s", got.Persona, tt.want)
			}
		})
	}
}

func TestClassify_SavingsBuilderNoCreditAccounts(t *testing.T) {
	b := cleanBundle("user_031")
	b.SavingsBehavior.GrowthRate = 4.0
	b.SavingsBehavior.NetInflow = 500

	got := Classify(b, classifyAt)
	if got.Persona != domain.PersonaSavingsBuilder {
		t.Errorf("Classify() persona = %s, want %s", got.Persona, domain.PersonaSavingsBuilder)
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// A user who is both highly utilized and subscription heavy lands on the
	// higher-priority persona regardless of match percentages.
	b := withUtilization(cleanBundle("user_040"), 55.0)
	b = withRecurring(b, []string{"Adobe", "Disney+", "Hulu", "Netflix"}, 80.0, 15.0)

	got := Classify(b, classifyAt)
	if got.Persona != domain.PersonaHighUtilization {
		t.Errorf("Classify() persona = %s, want %s", got.Persona, domain.PersonaHighUtilization)
	}
	if got.Matches.SubscriptionHeavy <= 0 {
		t.Errorf("Matches.SubscriptionHeavy = %v, want > 0 for a subscription-heavy user", got.Matches.SubscriptionHeavy)
	}
}

func TestClassify_DefaultFallback(t *testing.T) {
	got := Classify(cleanBundle("user_050"), classifyAt)

	if got.Persona != domain.PersonaGeneralWellness {
		t.Fatalf("Classify() persona = %s, want %s", got.Persona, domain.PersonaGeneralWellness)
	}
	if len(got.CriteriaMet) != 0 {
		t.Errorf("CriteriaMet = %v, want empty for fallback persona", got.CriteriaMet)
	}
	if got.Matches.GeneralWellness != 50.0 {
		t.Errorf("Matches.GeneralWellness = %v, want 50.0", got.Matches.GeneralWellness)
	}
}

func TestClassify_CriteriaRecorded(t *testing.T) {
	b := withUtilization(cleanBundle("user_051"), 68.0)
	got := Classify(b, classifyAt)

	want := []string{"credit_utilization >= 0.50 OR interest_charged > 0 OR minimum_payment_only OR is_overdue"}
	if !reflect.DeepEqual(got.CriteriaMet, want) {
		t.Errorf("CriteriaMet = %v, want %v", got.CriteriaMet, want)
	}
}

func TestClassify_AllMatchesPopulated(t *testing.T) {
	b := withUtilization(cleanBundle("user_052"), 68.0)
	b = withRecurring(b, []string{"Hulu", "Netflix", "Spotify"}, 45.0, 11.0)
	b.SavingsBehavior.GrowthRate = 3.0
	b.IncomeStability.MedianPayGap = 50
	b.IncomeStability.CashFlowBuffer = 0.4

	got := Classify(b, classifyAt)

	for _, p := range domain.Personas {
		v := got.Matches.For(p)
		if v < 0 || v > 100 {
			t.Errorf("Matches.For(%s) = %v, want within [0, 100]", p, v)
		}
	}
	if got.Matches.HighUtilization != 68.0 {
		t.Errorf("Matches.HighUtilization = %v, want 68.0", got.Matches.HighUtilization)
	}
	if got.Matches.VariableIncome == 0 {
		t.Error("Matches.VariableIncome = 0, want positive for irregular income")
	}
}

func TestClassify_MatchScoreBounds(t *testing.T) {
	extreme := cleanBundle("user_053")
	extreme.CreditUtilization.TotalUtilization = 240.0
	extreme.CreditUtilization.MinimumPaymentOnly = true
	extreme.CreditUtilization.IsOverdue = true
	extreme = withRecurring(extreme, []string{"a", "b", "c", "d", "e", "f", "g"}, 900.0, 95.0)
	extreme.SavingsBehavior.GrowthRate = 80.0
	extreme.SavingsBehavior.NetInflow = 50000
	extreme.SavingsBehavior.EmergencyFundCoverage = 40
	extreme.IncomeStability.MedianPayGap = 200
	extreme.IncomeStability.IrregularFrequency = true
	extreme.IncomeStability.CashFlowBuffer = -2

	got := Classify(extreme, classifyAt)
	for _, p := range domain.Personas {
		v := got.Matches.For(p)
		if v < 0 || v > 100 {
			t.Errorf("Matches.For(%s) = %v, want within [0, 100]", p, v)
		}
	}
}

func TestClassifyBatch_MatchesPerUserPath(t *testing.T) {
	bundles := map[string]domain.SignalBundle{
		"user_001": withUtilization(cleanBundle("user_001"), 68.0),
		"user_002": withRecurring(cleanBundle("user_002"), []string{"Adobe", "Hulu", "Netflix", "Spotify"}, 75.0, 14.0),
		"user_003": cleanBundle("user_003"),
		"user_004": func() domain.SignalBundle {
			b := cleanBundle("user_004")
			b.SavingsBehavior.GrowthRate = 5.0
			b.SavingsBehavior.NetInflow = 300
			return b
		}(),
	}

	batch := ClassifyBatch(bundles, classifyAt)
	if len(batch) != len(bundles) {
		t.Fatalf("ClassifyBatch() returned %d assignments, want %d", len(batch), len(bundles))
	}

	for userID, bundle := range bundles {
		single := Classify(bundle, classifyAt)
		if !reflect.DeepEqual(batch[userID], single) {
			t.Errorf("user %s: batch assignment = %+v, single = %+v", userID, batch[userID], single)
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	b := withUtilization(cleanBundle("user_060"), 72.0)
	first := Classify(b, classifyAt)
	second := Classify(b, classifyAt)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Classify() differs: %+v vs %+v", first, second)
	}
}
