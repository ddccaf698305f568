package recommend

import "github.com/spendsense/spendsense/internal/domain"

// Trigger signal vocabulary. Each name maps to one boolean condition over
// the signal bundle; catalog items reference these names in their
// trigger_signals lists.
const (
	TriggerCreditUtilizationHigh  = "credit_utilization_high"
	TriggerMinimumPaymentOnly     = "minimum_payment_only"
	TriggerInterestCharged        = "interest_charged"
	TriggerIsOverdue              = "is_overdue"
	TriggerIrregularFrequency     = "irregular_frequency"
	TriggerMedianPayGapHigh       = "median_pay_gap_high"
	TriggerCashFlowBufferLow      = "cash_flow_buffer_low"
	TriggerSubscriptionCountHigh  = "subscription_count_high"
	TriggerMonthlyRecurringHigh   = "monthly_recurring_high"
	TriggerSavingsGrowthPositive  = "savings_growth_rate_positive"
	TriggerEmergencyFundAdequate  = "emergency_fund_adequate"
	TriggerSavingsBalancePositive = "savings_balance_positive"
)

// triggerConditions evaluates one named trigger against a signal bundle.
// Unknown trigger names never fire.
var triggerConditions = map[string]func(domain.SignalBundle) bool{
	TriggerCreditUtilizationHigh: func(b domain.SignalBundle) bool {
		return b.CreditUtilization.TotalUtilization >= 50.0
	},
	TriggerMinimumPaymentOnly: func(b domain.SignalBundle) bool {
		return b.CreditUtilization.MinimumPaymentOnly
	},
	TriggerInterestCharged: func(b domain.SignalBundle) bool {
		return b.CreditUtilization.InterestCharged > 0
	},
	TriggerIsOverdue: func(b domain.SignalBundle) bool {
		return b.CreditUtilization.IsOverdue
	},
	TriggerIrregularFrequency: func(b domain.SignalBundle) bool {
		return b.IncomeStability.IrregularFrequency
	},
	TriggerMedianPayGapHigh: func(b domain.SignalBundle) bool {
		return b.IncomeStability.MedianPayGap > 45
	},
	TriggerCashFlowBufferLow: func(b domain.SignalBundle) bool {
		return b.IncomeStability.CashFlowBuffer < 1.0
	},
	TriggerSubscriptionCountHigh: func(b domain.SignalBundle) bool {
		return len(b.Subscriptions.RecurringMerchants) >= 3
	},
	TriggerMonthlyRecurringHigh: func(b domain.SignalBundle) bool {
		return b.Subscriptions.MonthlyRecurring >= 50.0
	},
	TriggerSavingsGrowthPositive: func(b domain.SignalBundle) bool {
		return b.SavingsBehavior.GrowthRate > 0
	},
	TriggerEmergencyFundAdequate: func(b domain.SignalBundle) bool {
		return b.SavingsBehavior.EmergencyFundCoverage >= 3.0
	},
	TriggerSavingsBalancePositive: func(b domain.SignalBundle) bool {
		return b.SavingsBehavior.TotalSavings > 0
	},
}

// MatchingTriggers returns the subset of triggers that fire for the bundle,
// preserving the order given.
func MatchingTriggers(bundle domain.SignalBundle, triggers []string) []string {
	var matched []string
	for _, name := range triggers {
		cond, known := triggerConditions[name]
		if known && cond(bundle) {
			matched = append(matched, name)
		}
	}
	return matched
}
