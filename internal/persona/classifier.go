// Package persona assigns one of five behavioral personas per (user, window)
// from the four computed signals. The cascade is an ordered rule table: the
// first satisfied predicate wins, general_wellness is the universal fallback,
// and independent match percentages are computed for every persona regardless
// of which one is primary.
package persona

import (
	"math"
	"sort"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Rule is one entry in the priority cascade.
type Rule struct {
	Persona   domain.Persona
	Priority  int
	Predicate func(domain.SignalBundle) bool
	Match     func(domain.SignalBundle) float64
	Criteria  []string
}

// Cascade returns the rule table in priority order. The assignment policy is
// first-satisfied-predicate, not highest match percentage.
func Cascade() []Rule {
	return []Rule{
		{
			Persona:   domain.PersonaHighUtilization,
			Priority:  1,
			Predicate: checkHighUtilization,
			Match:     matchHighUtilization,
			Criteria:  []string{"credit_utilization >= 0.50 OR interest_charged > 0 OR minimum_payment_only OR is_overdue"},
		},
		{
			Persona:   domain.PersonaVariableIncome,
			Priority:  2,
			Predicate: checkVariableIncome,
			Match:     matchVariableIncome,
			Criteria:  []string{"(median_pay_gap > 45 days OR irregular_frequency) AND cash_flow_buffer < 1.0"},
		},
		{
			Persona:   domain.PersonaSubscriptionHeavy,
			Priority:  3,
			Predicate: checkSubscriptionHeavy,
			Match:     matchSubscriptionHeavy,
			Criteria:  []string{"recurring_merchants >= 3 AND (monthly_recurring >= 50 OR subscription_share >= 0.10)"},
		},
		{
			Persona:   domain.PersonaSavingsBuilder,
			Priority:  4,
			Predicate: checkSavingsBuilder,
			Match:     matchSavingsBuilder,
			Criteria:  []string{"(savings_growth_rate >= 0.02 OR net_savings_inflow >= 200) AND all_credit_utilization < 0.30"},
		},
		{
			Persona:   domain.PersonaGeneralWellness,
			Priority:  5,
			Predicate: func(domain.SignalBundle) bool { return true },
			Match:     matchGeneralWellness,
			Criteria:  nil,
		},
	}
}

// Classify assigns the primary persona and all five match percentages for one
// signal bundle. Exactly one persona is always primary.
func Classify(bundle domain.SignalBundle, assignedAt time.Time) domain.PersonaAssignment {
	out := domain.PersonaAssignment{
		UserID:      bundle.UserID,
		TimeWindow:  bundle.TimeWindow,
		Persona:     domain.PersonaGeneralWellness,
		CriteriaMet: []string{},
		AssignedAt:  assignedAt,
	}

	assigned := false
	for _, rule := range Cascade() {
		out.Matches.Set(rule.Persona, rule.Match(bundle))
		if !assigned && rule.Predicate(bundle) {
			out.Persona = rule.Persona
			if rule.Criteria != nil {
				out.CriteriaMet = append([]string(nil), rule.Criteria...)
			}
			assigned = true
		}
	}
	return out
}

// ClassifyBatch evaluates the cascade column-major: one rule at a time across
// every bundle, the data-parallel counterpart of Classify. Output must be
// identical to calling Classify per user.
func ClassifyBatch(bundles map[string]domain.SignalBundle, assignedAt time.Time) map[string]domain.PersonaAssignment {
	userIDs := make([]string, 0, len(bundles))
	for id := range bundles {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	out := make(map[string]*domain.PersonaAssignment, len(bundles))
	for _, id := range userIDs {
		b := bundles[id]
		out[id] = &domain.PersonaAssignment{
			UserID:      b.UserID,
			TimeWindow:  b.TimeWindow,
			Persona:     domain.PersonaGeneralWellness,
			CriteriaMet: []string{},
			AssignedAt:  assignedAt,
		}
	}

	assigned := make(map[string]bool, len(bundles))
	for _, rule := range Cascade() {
		for _, id := range userIDs {
			bundle := bundles[id]
			out[id].Matches.Set(rule.Persona, rule.Match(bundle))
			if !assigned[id] && rule.Predicate(bundle) {
				out[id].Persona = rule.Persona
				if rule.Criteria != nil {
					out[id].CriteriaMet = append([]string(nil), rule.Criteria...)
				}
				assigned[id] = true
			}
		}
	}

	result := make(map[string]domain.PersonaAssignment, len(out))
	for id, a := range out {
		result[id] = *a
	}
	return result
}

func checkHighUtilization(s domain.SignalBundle) bool {
	cu := s.CreditUtilization
	if cu.TotalUtilization/100 >= 0.50 {
		return true
	}
	if cu.InterestCharged > 0 || cu.MinimumPaymentOnly || cu.IsOverdue {
		return true
	}
	for _, a := range cu.Accounts {
		if a.Utilization/100 >= 0.50 {
			return true
		}
	}
	return false
}

func checkVariableIncome(s domain.SignalBundle) bool {
	is := s.IncomeStability
	incomeIrregular := is.MedianPayGap > 45 || is.IrregularFrequency
	return incomeIrregular && is.CashFlowBuffer < 1.0
}

func checkSubscriptionHeavy(s domain.SignalBundle) bool {
	sub := s.Subscriptions
	if len(sub.RecurringMerchants) < 3 {
		return false
	}
	return sub.MonthlyRecurring >= 50.0 || sub.SubscriptionShare/100 >= 0.10
}

func checkSavingsBuilder(s domain.SignalBundle) bool {
	sb := s.SavingsBehavior
	if !(sb.GrowthRate/100 >= 0.02 || sb.NetInflow >= 200.0) {
		return false
	}
	cu := s.CreditUtilization
	if cu.TotalUtilization/100 >= 0.30 {
		return false
	}
	for _, a := range cu.Accounts {
		if a.Utilization/100 >= 0.30 {
			return false
		}
	}
	return true
}

// Match percentage functions. Each is linear over the persona's qualifying
// range and reads only that persona's signals, so the five values are
// independent and need not sum to 100.

func matchHighUtilization(s domain.SignalBundle) float64 {
	cu := s.CreditUtilization
	score := clamp(cu.TotalUtilization, 0, 100)
	for _, a := range cu.Accounts {
		if u := clamp(a.Utilization, 0, 100); u > score {
			score = u
		}
	}
	// Boolean aggravators lift the score at least to the qualifying band.
	if cu.InterestCharged > 0 {
		score = math.Max(score, 55)
	}
	if cu.MinimumPaymentOnly || cu.IsOverdue {
		score = math.Max(score, 60)
	}
	return round1(score)
}

func matchVariableIncome(s domain.SignalBundle) float64 {
	is := s.IncomeStability
	if !(is.MedianPayGap > 45 || is.IrregularFrequency) {
		return 0
	}
	score := 50.0
	score += 25 * clamp((is.MedianPayGap-45)/45, 0, 1)
	score += 25 * clamp(1-is.CashFlowBuffer, 0, 1)
	return round1(score)
}

func matchSubscriptionHeavy(s domain.SignalBundle) float64 {
	sub := s.Subscriptions
	score := 40*clamp(float64(len(sub.RecurringMerchants))/5, 0, 1) +
		30*clamp(sub.MonthlyRecurring/100, 0, 1) +
		30*clamp(sub.SubscriptionShare/25, 0, 1)
	return round1(score)
}

func matchSavingsBuilder(s domain.SignalBundle) float64 {
	sb := s.SavingsBehavior
	score := 50*clamp(sb.GrowthRate/10, 0, 1) +
		30*clamp(sb.NetInflow/1000, 0, 1) +
		20*clamp(sb.EmergencyFundCoverage/6, 0, 1)

	cu := s.CreditUtilization
	disqualified := cu.TotalUtilization/100 >= 0.30
	for _, a := range cu.Accounts {
		if a.Utilization/100 >= 0.30 {
			disqualified = true
		}
	}
	if disqualified {
		score *= 0.5
	}
	return round1(score)
}

// matchGeneralWellness is a flat baseline: the fallback persona fits every
// user equally.
func matchGeneralWellness(domain.SignalBundle) float64 {
	return 50.0
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
