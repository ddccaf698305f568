package recommend

import (
	"strings"
	"testing"

	"github.com/spendsense/spendsense/internal/domain"
)

func creditBundle() domain.SignalBundle {
	return domain.SignalBundle{
		UserID:     "user_001",
		TimeWindow: domain.Window30d,
		CreditUtilization: domain.CreditUtilization{
			TotalUtilization: 68.0,
			UtilizationLevel: "high",
			Accounts: []domain.UtilizationAccount{
				{
					AccountID:   "acc_cc1",
					Name:        "Rewards Card",
					Mask:        "4523",
					Subtype:     "credit card",
					Balance:     6800,
					Limit:       10000,
					Utilization: 68.0,
				},
				{
					AccountID:   "acc_cc2",
					Name:        "Travel Card",
					Mask:        "9911",
					Subtype:     "credit card",
					Balance:     1200,
					Limit:       4000,
					Utilization: 30.0,
				},
			},
			InterestCharged: 35.0,
		},
		Subscriptions: domain.Subscriptions{
			RecurringMerchants: []string{"Adobe", "Netflix", "Spotify"},
			MonthlyRecurring:   45.5,
			SubscriptionShare:  12.0,
		},
		SavingsBehavior: domain.SavingsBehavior{
			TotalSavings:          8800,
			GrowthRate:            5.0,
			NetInflow:             800,
			EmergencyFundCoverage: 3.5,
		},
		IncomeStability: domain.IncomeStability{
			Frequency:      "biweekly",
			MedianPayGap:   14,
			CashFlowBuffer: 0.8,
		},
	}
}

func TestRenderRationale_CardPlaceholders(t *testing.T) {
	template := "Your {card_name} is at {utilization} utilization ({balance} of {limit} limit)."
	got := RenderRationale(template, creditBundle())
	want := "Your Credit Card ending in 4523 is at 68.0% utilization ($6,800.00 of $10,000.00 limit)."
	if got != want {
		t.Errorf("RenderRationale() = %q, want %q", got, want)
	}
}

func TestRenderRationale_Placeholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "interest charged as currency",
			template: "You're paying {interest_charged} per month in interest.",
			want:     "You're paying $35.00 per month in interest.",
		},
		{
			name:     "subscription count as bare integer",
			template: "You have {subscription_count} active subscriptions totaling {monthly_recurring} per month.",
			want:     "You have 3 active subscriptions totaling $45.50 per month.",
		},
		{
			name:     "total balance sums all cards",
			template: "With {total_balance} in credit card debt.",
			want:     "With $8,000.00 in credit card debt.",
		},
		{
			name:     "total savings with grouping",
			template: "With {total_savings} in savings.",
			want:     "With $8,800.00 in savings.",
		},
		{
			name:     "growth rate as percentage",
			template: "Your savings have grown by {growth_rate} recently.",
			want:     "Your savings have grown by 5.0% recently.",
		},
		{
			name:     "cash flow buffer one decimal",
			template: "Your buffer covers {cash_flow_buffer} months of expenses.",
			want:     "Your buffer covers 0.8 months of expenses.",
		},
		{
			name:     "median pay gap as days",
			template: "With {median_pay_gap} days between paychecks.",
			want:     "With 14 days between paychecks.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderRationale(tt.template, creditBundle()); got != tt.want {
				t.Errorf("RenderRationale() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderRationale_NoCreditAccounts(t *testing.T) {
	b := domain.SignalBundle{
		UserID: "user_002",
		CreditUtilization: domain.CreditUtilization{
			UtilizationLevel: "low",
			Accounts:         []domain.UtilizationAccount{},
		},
	}

	// Card-level placeholders cannot resolve and must be swept, not leaked.
	got := RenderRationale("Your {card_name} is at {utilization} utilization ({balance} of {limit} limit).", b)
	if strings.Contains(got, "{") || strings.Contains(got, "}") {
		t.Errorf("RenderRationale() leaked template syntax: %q", got)
	}
	// Utilization falls back to the zero total even with no accounts.
	if !strings.Contains(got, "0.0%") {
		t.Errorf("RenderRationale() = %q, want utilization fallback to 0.0%%", got)
	}
}

func TestRenderRationale_UnknownPlaceholderStripped(t *testing.T) {
	got := RenderRationale("Check {mystery_value} for details.", creditBundle())
	if got != "Check  for details." {
		t.Errorf("RenderRationale() = %q, want unknown placeholder stripped", got)
	}
}

func TestRenderRationale_TrimsResult(t *testing.T) {
	got := RenderRationale("{unresolvable}", domain.SignalBundle{})
	if got != "" {
		t.Errorf("RenderRationale() = %q, want empty string", got)
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{1234.56, "$1,234.56"},
		{35, "$35.00"},
		{0, "$0.00"},
		{-50, "-$50.00"},
		{1000000, "$1,000,000.00"},
		// 49.99*100 is 4998.999... in float64; cents must round, not truncate.
		{49.99, "$49.99"},
		{29.99, "$29.99"},
	}
	for _, tt := range tests {
		if got := FormatCurrency(tt.amount); got != tt.want {
			t.Errorf("FormatCurrency(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{68, "68.0%"},
		{5.25, "5.2%"},
		{0, "0.0%"},
	}
	for _, tt := range tests {
		if got := FormatPercent(tt.value); got != tt.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestCardName(t *testing.T) {
	tests := []struct {
		name string
		acc  domain.UtilizationAccount
		want string
	}{
		{"with mask", domain.UtilizationAccount{Subtype: "credit card", Mask: "4523"}, "Credit Card ending in 4523"},
		{"placeholder mask", domain.UtilizationAccount{Subtype: "credit card", Mask: "****"}, "Credit Card card"},
		{"no subtype", domain.UtilizationAccount{Mask: "4523"}, "Card ending in 4523"},
		{"nothing", domain.UtilizationAccount{}, "Card card"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cardName(tt.acc); got != tt.want {
				t.Errorf("cardName() = %q, want %q", got, tt.want)
			}
		})
	}
}
