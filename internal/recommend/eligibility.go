package recommend

import (
	"sort"

	"github.com/spendsense/spendsense/internal/catalog"
	"github.com/spendsense/spendsense/internal/domain"
)

// Facts is the flat view of a signal bundle that offer eligibility criteria
// are evaluated against. Values are float64 or bool.
type Facts map[string]any

// EligibilityFacts projects the signal bundle onto the criteria vocabulary.
// credit_utilization is expressed as a 0-1 ratio to match how offers declare
// their bounds.
func EligibilityFacts(b domain.SignalBundle) Facts {
	return Facts{
		"credit_utilization": b.CreditUtilization.TotalUtilization / 100,
		"is_overdue":         b.CreditUtilization.IsOverdue,
		"subscription_count": float64(len(b.Subscriptions.RecurringMerchants)),
		"savings_balance":    b.SavingsBehavior.TotalSavings,
		"monthly_recurring":  b.Subscriptions.MonthlyRecurring,
	}
}

// Check evaluates declarative eligibility criteria against the facts. Every
// declared constraint on a known field must pass; fields with no signal
// counterpart (min_credit_score from the partner feed) are skipped. The
// returned field list records which facts were actually consulted, in sorted
// order for stable traces.
func (f Facts) Check(criteria map[string]catalog.Constraint) (bool, []string) {
	if len(criteria) == 0 {
		return true, nil
	}

	fields := make([]string, 0, len(criteria))
	for field := range criteria {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var consulted []string
	for _, field := range fields {
		value, known := f[field]
		if !known {
			continue
		}
		consulted = append(consulted, field)

		con := criteria[field]
		switch v := value.(type) {
		case float64:
			if con.Min != nil && v < *con.Min {
				return false, consulted
			}
			if con.Max != nil && v > *con.Max {
				return false, consulted
			}
		case bool:
			if con.Equals != nil && v != *con.Equals {
				return false, consulted
			}
		}
	}
	return true, consulted
}
